package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"templatesync/internal/outcome"
)

// FileSink persists a run's outcomes.
//
// In json mode the outcomes are collected and written as one array on Close,
// via a temporary file renamed over path, so path only ever holds a complete
// document. In ndjson mode every event is appended to path as it arrives.
type FileSink struct {
	path     string
	format   string
	file     *os.File
	mu       sync.Mutex
	outcomes []outcome.Outcome
	closed   bool
}

// InferFormat maps a file extension to an output format.
func InferFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

// NewFileSink opens a sink writing to path. An empty format is inferred from
// the extension.
func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		inferred, err := InferFormat(path)
		if err != nil {
			return nil, err
		}
		format = inferred
	}

	var open func() (*os.File, error)
	switch format {
	case "json":
		open = func() (*os.File, error) {
			return os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
		}
	case "ndjson":
		open = func() (*os.File, error) { return os.Create(path) }
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &FileSink{path: path, format: format, file: f}, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("write to closed output file %s", s.path)
	}

	if s.format == "json" {
		if o, ok := v.(outcome.Outcome); ok {
			s.outcomes = append(s.outcomes, o)
		}
		return nil
	}

	switch t := v.(type) {
	case Event:
		return json.NewEncoder(s.file).Encode(t)
	case outcome.Outcome:
		return json.NewEncoder(s.file).Encode(eventFromOutcome(t))
	default:
		return nil
	}
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.format != "json" {
		return s.file.Close()
	}

	tmp := s.file.Name()
	out := s.outcomes
	if out == nil {
		out = []outcome.Outcome{}
	}
	encoder := json.NewEncoder(s.file)
	encoder.SetIndent("", "  ")
	err := encoder.Encode(out)
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, s.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write output file %s: %w", s.path, err)
	}
	return nil
}
