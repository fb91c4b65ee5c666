package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"templatesync/internal/outcome"
)

// ConsoleSink renders outcomes for an operator:
//
//	text    one coloured line per outcome
//	json    one array of outcomes, written on Close
//	ndjson  one lifecycle event per line, flushed as it is written
//
// A non-empty status filter limits which outcomes are shown; lifecycle events
// are never filtered.
type ConsoleSink struct {
	writer   io.Writer
	format   string
	mu       sync.Mutex
	outcomes []outcome.Outcome
	allowed  map[outcome.Status]bool
}

func NewConsoleSink(w io.Writer, format string, statuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	s := &ConsoleSink{writer: w, format: format}
	if len(statuses) > 0 {
		s.allowed = make(map[outcome.Status]bool, len(statuses))
		for _, st := range statuses {
			s.allowed[outcome.Status(strings.ToLower(strings.TrimSpace(st)))] = true
		}
	}
	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, isOutcome := v.(outcome.Outcome)
	if isOutcome && len(s.allowed) > 0 && !s.allowed[o.Status] {
		return nil
	}

	switch s.format {
	case "text":
		if !isOutcome {
			return nil
		}
		return s.line(formatOutcomeLine(o))
	case "json":
		if isOutcome {
			s.outcomes = append(s.outcomes, o)
		}
		return nil
	case "ndjson":
		if isOutcome {
			return s.event(eventFromOutcome(o))
		}
		if ev, ok := v.(Event); ok {
			return s.event(ev)
		}
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) line(text string) error {
	if _, err := fmt.Fprintln(s.writer, text); err != nil {
		return err
	}
	return flushIfPossible(s.writer)
}

func (s *ConsoleSink) event(ev Event) error {
	if err := json.NewEncoder(s.writer).Encode(ev); err != nil {
		return err
	}
	return flushIfPossible(s.writer)
}

var (
	pushedLabel = color.New(color.FgGreen, color.Bold)
	prLabel     = color.New(color.FgYellow, color.Bold)
	errorLabel  = color.New(color.FgRed, color.Bold)
)

// formatOutcomeLine renders one outcome as
//
//	[PUSHED] owner/name
//	[PR] owner/name - branch sync-template-123 (https://...)
//	[ERROR] owner/name - <detail>
func formatOutcomeLine(o outcome.Outcome) string {
	label := "[" + strings.ToUpper(string(o.Status)) + "]"
	var b strings.Builder
	switch o.Status {
	case outcome.StatusPushed:
		b.WriteString(pushedLabel.Sprint(label) + " " + o.Repo)
	case outcome.StatusPR:
		b.WriteString(prLabel.Sprint(label) + " " + o.Repo + " - branch " + o.Branch)
		if o.PullRequestURL != "" {
			b.WriteString(" (" + o.PullRequestURL + ")")
		}
	default:
		b.WriteString(errorLabel.Sprint(label) + " " + o.Repo)
		if o.Error != "" {
			b.WriteString(" - " + o.Error)
		}
	}
	return b.String()
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "text", "ndjson":
		return nil
	case "json":
		out := s.outcomes
		if out == nil {
			out = []outcome.Outcome{}
		}
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
