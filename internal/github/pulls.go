package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v81/github"
)

// PullRequestInput describes a pull request opened from Head onto Base within
// the same repository.
type PullRequestInput struct {
	Base  string
	Head  string
	Title string
	Body  string
}

type PullRequest struct {
	Number int
	URL    string
}

// CreatePullRequest opens a pull request on the repository named fullName (OWNER/NAME).
func (c *Client) CreatePullRequest(ctx context.Context, fullName string, in PullRequestInput) (*PullRequest, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid repository %q; expected owner/name", fullName)
	}
	if in.Base == "" || in.Head == "" {
		return nil, fmt.Errorf("pull request for %s: base and head branches are required", fullName)
	}

	pr, _, err := c.Client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.Ptr(in.Title),
		Head:  github.Ptr(in.Head),
		Base:  github.Ptr(in.Base),
		Body:  github.Ptr(in.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request on %s: %w", fullName, err)
	}
	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}, nil
}
