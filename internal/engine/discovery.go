package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v81/github"
	logger "github.com/sirupsen/logrus"

	"templatesync/internal/config"
	gh "templatesync/internal/github"
)

// SearchSource lists the repositories of one owner that carry a topic, using
// the GitHub repository search API.
type SearchSource struct {
	client  *gh.Client
	owner   string
	topic   string
	perPage int
	exclude []string
	log     logger.FieldLogger
}

func NewSearchSource(client *gh.Client, cfg *config.Config, log logger.FieldLogger) *SearchSource {
	if log == nil {
		log = logger.StandardLogger()
	}
	perPage := cfg.Discovery.PerPage
	if perPage < 1 {
		perPage = config.DefaultPerPage
	}
	return &SearchSource{
		client:  client,
		owner:   cfg.Discovery.Owner,
		topic:   cfg.Discovery.Topic,
		perPage: perPage,
		exclude: cfg.Discovery.Exclude,
		log:     log,
	}
}

// Query is the search expression sent to GitHub.
func (s *SearchSource) Query() string {
	return fmt.Sprintf("topic:%s user:%s", s.topic, s.owner)
}

// ListRepositories returns OWNER/NAME for every match, in API order.
//
// Pages are requested while the previous page was full; the first short or
// empty page ends the listing. Results are not de-duplicated.
func (s *SearchSource) ListRepositories(ctx context.Context) ([]string, error) {
	if s == nil || s.client == nil || s.client.Client == nil {
		return nil, &DiscoveryError{Page: 1, Err: errors.New("github client is nil")}
	}

	query := s.Query()
	var names []string
	for page := 1; ; page++ {
		res, _, err := s.client.Client.Search.Repositories(ctx, query, &github.SearchOptions{
			ListOptions: github.ListOptions{Page: page, PerPage: s.perPage},
		})
		if err != nil {
			return nil, &DiscoveryError{Page: page, Err: err}
		}
		if res == nil {
			return nil, &DiscoveryError{Page: page, Err: errors.New("empty search response")}
		}
		if res.GetIncompleteResults() {
			s.log.Warnf("GitHub reported incomplete search results for %q (page %d)", query, page)
		}

		for i, repo := range res.Repositories {
			name := repo.GetFullName()
			if name == "" {
				return nil, &DiscoveryError{Page: page, Err: fmt.Errorf("search item %d has no full_name", i)}
			}
			names = append(names, name)
		}

		if len(res.Repositories) < s.perPage {
			break
		}
	}

	filtered := FilterExcluded(names, s.exclude)
	if dropped := len(names) - len(filtered); dropped > 0 {
		s.log.Infof("Excluded %d repositories by pattern.", dropped)
	}
	return filtered, nil
}
