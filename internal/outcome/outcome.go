// Package outcome holds the per-repository result of a sync run.
package outcome

import "time"

type Status string

const (
	StatusPushed Status = "pushed"
	StatusPR     Status = "pr"
	StatusError  Status = "error"
)

// Outcome is the single record produced for each downstream repository.
type Outcome struct {
	Repo   string `json:"repo"`
	Status Status `json:"status"`

	// Branch, PullRequestNumber and PullRequestURL are set when Status is pr.
	Branch            string `json:"branch,omitempty"`
	PullRequestNumber int    `json:"pull_request_number,omitempty"`
	PullRequestURL    string `json:"pull_request_url,omitempty"`

	// State is the protocol state the worker failed in; Error is the
	// operator-facing failure detail.
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	DurationMS int64 `json:"duration_ms,omitempty"`
}

func Pushed(repo string) Outcome {
	return Outcome{Repo: repo, Status: StatusPushed}
}

func PullRequest(repo, branch string, number int, url string) Outcome {
	return Outcome{
		Repo:              repo,
		Status:            StatusPR,
		Branch:            branch,
		PullRequestNumber: number,
		PullRequestURL:    url,
	}
}

// Failed records err against repo. detail is what operators see; when empty
// the raw error text is used.
func Failed(repo, state string, err error, detail string) Outcome {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return Outcome{
		Repo:   repo,
		Status: StatusError,
		State:  state,
		Error:  detail,
		Err:    err,
	}
}

// WithDuration stamps the worker's wall time.
func (o Outcome) WithDuration(d time.Duration) Outcome {
	o.DurationMS = d.Milliseconds()
	return o
}

// Summary counts outcomes by status.
type Summary struct {
	Total  int `json:"total"`
	Pushed int `json:"pushed"`
	PR     int `json:"pr"`
	Errors int `json:"errors"`
}

func (s *Summary) Add(o Outcome) {
	s.Total++
	switch o.Status {
	case StatusPushed:
		s.Pushed++
	case StatusPR:
		s.PR++
	default:
		s.Errors++
	}
}

func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Add(o)
	}
	return s
}
