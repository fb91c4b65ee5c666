package engine

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Per-repository failure kinds. A *SyncError unwraps to exactly one of them.
var (
	ErrClone       = errors.New("clone failed")
	ErrFetch       = errors.New("fetching the template failed")
	ErrBranch      = errors.New("preparing the conflict branch failed")
	ErrPush        = errors.New("push failed")
	ErrPullRequest = errors.New("pull request creation failed")

	// ErrMergeConflict marks a merge that did not apply cleanly. It selects the
	// pull-request fallback and never ends up in an outcome.
	ErrMergeConflict = errors.New("merge did not apply cleanly")
)

var (
	ErrInvalidLimit = errors.New("concurrency limit must be >= 1")
	ErrWorkerPanic  = errors.New("worker panicked")
)

// DiscoveryError aborts a run before any repository is touched.
type DiscoveryError struct {
	Page int
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("repository search failed on page %d: %v", e.Page, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// SyncError is a fatal failure for one repository.
type SyncError struct {
	Repo  string
	State State
	Kind  error
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v (%s): %v", e.Repo, e.Kind, e.State, e.Err)
}

func (e *SyncError) Unwrap() []error { return []error{e.Kind, e.Err} }

// presentError renders err for operators. Unless verbose, request URLs that
// go-github and net/http embed in error strings are dropped.
func presentError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	if verbose {
		return err.Error()
	}

	var se *SyncError
	if errors.As(err, &se) {
		if se.Err == nil {
			return se.Kind.Error()
		}
		return fmt.Sprintf("%v: %s", se.Kind, presentCause(se.Err))
	}
	var de *DiscoveryError
	if errors.As(err, &de) {
		return fmt.Sprintf("repository search failed on page %d: %s", de.Page, presentCause(de.Err))
	}
	return presentCause(err)
}

func presentCause(err error) string {
	// Prefer structured GitHub error types to avoid leaking full request URLs.
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			status := fmt.Sprintf("%d %s", er.Response.StatusCode, http.StatusText(er.Response.StatusCode))
			return fmt.Sprintf("GitHub API request failed (%s): %s", status, msg)
		}
		return fmt.Sprintf("GitHub API request failed: %s", msg)
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return fmt.Sprintf("GitHub API rate limit exceeded (resets %s)", rle.Rate.Reset.Format("15:04:05 MST"))
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}

	s := strings.TrimSpace(err.Error())
	if scrubbed := scrubGitHubRequestFromErrorString(s); scrubbed != "" {
		return scrubbed
	}
	return s
}

func scrubGitHubRequestFromErrorString(s string) string {
	// Typical go-github error format:
	//   GET https://api.github.com/...: 403 Some message. [..]
	// We want to drop the leading "GET https://...: " part.
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if strings.HasPrefix(s, m) {
			if i := strings.Index(s, "https://"); i >= 0 {
				if j := strings.Index(s[i:], ": "); j >= 0 {
					return strings.TrimSpace(s[i+j+2:])
				}
			}
			if j := strings.Index(s, ": "); j >= 0 {
				return strings.TrimSpace(s[j+2:])
			}
			break
		}
	}
	return ""
}

func asSyncError(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
