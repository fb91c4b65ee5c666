package engine

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-github/v81/github"
)

func TestPresentError_GitHubErrorResponse_DropsRequestURL(t *testing.T) {
	cause := &github.ErrorResponse{
		Response: &http.Response{
			StatusCode: 422,
			Status:     "422 Unprocessable Entity",
			Request:    &http.Request{Method: "POST"},
		},
		Message: "Validation Failed",
	}
	err := &SyncError{
		Repo:  "acme/site",
		State: StatePRCreating,
		Kind:  ErrPullRequest,
		Err:   fmt.Errorf("failed to create pull request on acme/site: %w", cause),
	}

	got := presentError(err, false)
	want := "pull request creation failed: GitHub API request failed (422 Unprocessable Entity): Validation Failed"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPresentError_Verbose_KeepsFullText(t *testing.T) {
	err := errors.New("GET https://api.github.com/search/repositories: 500 boom")
	if got := presentError(err, true); got != err.Error() {
		t.Fatalf("expected full error text, got %q", got)
	}
}

func TestPresentError_DiscoveryError(t *testing.T) {
	err := &DiscoveryError{Page: 2, Err: errors.New("GET https://api.github.com/search/repositories?page=2: 502 bad gateway")}
	want := "repository search failed on page 2: 502 bad gateway"
	if got := presentError(err, false); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestScrubGitHubRequestFromErrorString_StripsURLPrefix(t *testing.T) {
	s := "GET https://api.github.com/search/repositories?q=topic%3Ax: 403 some message []"
	out := scrubGitHubRequestFromErrorString(s)
	if want := "403 some message []"; out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
	if out := scrubGitHubRequestFromErrorString("clone acme/site: repository not found"); out != "" {
		t.Fatalf("expected no scrub for non-request error, got %q", out)
	}
}

func TestSyncError_UnwrapsToKindAndCause(t *testing.T) {
	cause := errors.New("authentication required")
	err := error(&SyncError{Repo: "acme/site", State: StateCloning, Kind: ErrClone, Err: cause})

	if !errors.Is(err, ErrClone) {
		t.Fatalf("expected errors.Is(err, ErrClone)")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrPush) {
		t.Fatalf("unexpected errors.Is(err, ErrPush)")
	}
	if got, want := err.Error(), "acme/site: clone failed (cloning): authentication required"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
