package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v81/github"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	verbose bool
	// log receives one line per request when verbose logging is enabled.
	// Defaults to the standard logrus logger.
	log    logger.FieldLogger
	apiURL string
}

type Option func(*options)

func WithVerbose(enabled bool, log logger.FieldLogger) Option {
	return func(o *options) {
		o.verbose = enabled
		o.log = log
	}
}

// WithAPIURL points the client at a GitHub Enterprise Server REST endpoint.
func WithAPIURL(apiURL string) Option {
	return func(o *options) {
		o.apiURL = apiURL
	}
}

// loggingRoundTripper wraps an underlying transport and emits one line per
// request and response (including latency) when verbose logging is enabled.
// It sits below the oauth2 transport, but only the method and URL are logged,
// never headers.
type loggingRoundTripper struct {
	base http.RoundTripper
	log  logger.FieldLogger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debugf("github api: %s %s", req.Method, req.URL.String())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.log.Debugf("github api: error after %s: %v", dur, err)
	} else {
		t.log.Debugf("github api: %d %s (%s)", resp.StatusCode, http.StatusText(resp.StatusCode), dur)
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.log == nil {
		o.log = logger.StandardLogger()
	}

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, log: o.log}
	}
	transport = &rateLimitRoundTripper{base: transport, limiter: newRateLimiter(time.Now)}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport}

	client := github.NewClient(tc)
	if o.apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(o.apiURL, o.apiURL)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid api url %q: %w", o.apiURL, err)
		}
	}

	return &Client{
		Client: client,
		HTTP:   tc,
	}, nil
}
