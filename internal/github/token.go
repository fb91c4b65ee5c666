package github

import (
	"errors"
	"os"
	"strings"
)

// EnvToken holds the personal access token used for search, push and pull
// request creation. It needs repo scope on every downstream repository.
const EnvToken = "TEMPLATE_SYNC_PAT"

// ErrMissingToken is returned when no credential is configured.
var ErrMissingToken = errors.New("missing " + EnvToken + ": set it to a personal access token with repo scope (in CI, store it as a secret of the template repository)")

// ResolveAuthToken reads the sync credential from the environment.
//
// A nil lookup uses os.LookupEnv. It never prints the token.
func ResolveAuthToken(lookup func(string) (string, bool)) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, _ := lookup(EnvToken)
	tok := strings.TrimSpace(raw)
	if tok == "" {
		return "", ErrMissingToken
	}

	// Basic sanity: tokens must not contain whitespace.
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid " + EnvToken + ": contains whitespace")
	}
	return tok, nil
}
