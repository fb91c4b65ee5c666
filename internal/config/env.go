package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvConcurrency optionally overrides Runtime.Concurrency.
const EnvConcurrency = "PROPAGATE_CONCURRENCY"

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment-provided settings on cfg. An unset or blank
// variable leaves the current value alone; a malformed one is an error rather
// than a silent fallback.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	raw, ok := lookup(EnvConcurrency)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fmt.Errorf("invalid %s %q: must be a positive integer", EnvConcurrency, raw)
	}
	cfg.Runtime.Concurrency = n
	return nil
}
