package output

import "templatesync/internal/outcome"

// Event type names.
const (
	EventRunStarted  = "run.started"
	EventRepoOutcome = "repo.outcome"
	EventRunFinished = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line):
// - run.started
// - repo.outcome
// - run.finished
//
// JSON mode remains an aggregate of outcome.Outcome values.
type Event struct {
	Type string `json:"type"`
	Repo string `json:"repo,omitempty"`
	*outcome.Outcome
	Template string           `json:"template,omitempty"`
	Repos    int              `json:"repos,omitempty"`
	Summary  *outcome.Summary `json:"summary,omitempty"`
	// ExitCode is set on run.finished only, where 0 is a meaningful value.
	ExitCode *int             `json:"exit_code,omitempty"`
}

func eventFromOutcome(o outcome.Outcome) Event {
	return Event{Type: EventRepoOutcome, Repo: o.Repo, Outcome: &o}
}
