package output

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"templatesync/internal/outcome"
)

// Sink defines a destination for sync outcomes and lifecycle events.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans a run's lifecycle out to every sink and keeps the running
// summary. Record may be called from several scheduler lanes at once.
type Manager struct {
	mu      sync.Mutex
	sinks   []Sink
	summary outcome.Summary
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
	return nil
}

// Start announces a run over repos repositories synced from template.
func (m *Manager) Start(template string, repos int) error {
	return m.Write(Event{Type: EventRunStarted, Template: template, Repos: repos})
}

// Record counts o in the summary and writes it to every sink. The outcome is
// counted even when a sink fails.
func (m *Manager) Record(o outcome.Outcome) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary.Add(o)
	return m.writeLocked(o)
}

// Finish writes the run.finished event and returns the final summary.
func (m *Manager) Finish(exitCode int) (outcome.Summary, error) {
	if m == nil {
		return outcome.Summary{}, fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := m.summary
	return summary, m.writeLocked(Event{Type: EventRunFinished, Summary: &summary, ExitCode: &exitCode})
}

func (m *Manager) Summary() outcome.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(v)
}

func (m *Manager) writeLocked(v any) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}

type flusher interface {
	Flush() error
}

// flushIfPossible pushes buffered stream output to the reader after each
// line.
func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}
