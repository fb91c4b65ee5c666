package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultTemplateRepo     = "VidyFoo/TEMPLATE_ANTIGRAVITY"
	DefaultTemplateBranch   = "main"
	DefaultOwner            = "VidyFoo"
	DefaultTopic            = "from-template-antigravity"
	DefaultPerPage          = 100
	DefaultSyncBranch       = "main"
	DefaultBranchPrefix     = "sync-template-"
	DefaultCommitMessage    = "chore: sync template"
	DefaultPullRequestTitle = "Sync template"
	DefaultPullRequestBody  = "Automated template sync failed due to conflicts."
	DefaultAuthorName       = "template-sync"
	DefaultAuthorEmail      = "template-sync@users.noreply.github.com"
	DefaultWebURL           = "https://github.com"
	DefaultConcurrency      = 3
	// DefaultTimeout of zero means the run has no deadline.
	DefaultTimeout time.Duration = 0

	// maxPerPage is the largest page size accepted by the GitHub search API.
	maxPerPage = 100
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/sync.go (and the overlay table there)
	// - YAML keys listed in the sync command's long help
	Template  Template  `yaml:"template"`
	Discovery Discovery `yaml:"discovery"`
	Sync      Sync      `yaml:"sync"`
	GitHub    GitHub    `yaml:"github"`
	Output    Output    `yaml:"output"`
	Runtime   Runtime   `yaml:"runtime"`
}

type Template struct {
	// Repo is the template repository as OWNER/NAME (see --template).
	Repo string `yaml:"repo"`

	// Branch is the template branch whose tip is merged downstream (see --template-branch).
	Branch string `yaml:"branch"`
}

type Discovery struct {
	// Owner restricts the search to repositories of this user or organization (see --owner).
	Owner string `yaml:"owner"`

	// Topic is the tag downstream repositories carry to declare themselves instances
	// of the template (see --topic).
	Topic string `yaml:"topic"`

	// PerPage is the search page size. A full page means more may follow.
	PerPage int `yaml:"per_page"`

	// Exclude drops discovered repositories by Go path.Match pattern (see --exclude).
	// If a pattern contains '/', it matches OWNER/NAME; otherwise it matches the name.
	Exclude []string `yaml:"exclude"`

	// DryRun lists the discovered repositories without syncing them (see --dry-run).
	DryRun bool `yaml:"-"`
}

type Sync struct {
	// Branch is the downstream branch that tracks the template (see --sync-branch).
	Branch string `yaml:"branch"`

	// BranchPrefix prefixes the conflict branch name; a unique token is appended (see --branch-prefix).
	BranchPrefix string `yaml:"branch_prefix"`

	CommitMessage    string `yaml:"commit_message"`
	PullRequestTitle string `yaml:"pull_request_title"`
	PullRequestBody  string `yaml:"pull_request_body"`

	// AuthorName and AuthorEmail identify merge and conflict commits.
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`

	// WorkDir is the parent directory for working clones; empty means the OS temp dir (see --work-dir).
	WorkDir string `yaml:"work_dir"`

	// KeepClones leaves working clones on disk after the run (see --keep-clones).
	KeepClones bool `yaml:"keep_clones"`
}

type GitHub struct {
	// APIURL overrides the REST API base URL (GitHub Enterprise Server). Empty means api.github.com.
	APIURL string `yaml:"api_url"`

	// WebURL is the base URL clone remotes are derived from.
	WebURL string `yaml:"web_url"`
}

type Output struct {
	// ConsoleFormat controls the console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// Out writes structured outcomes to this path (see --out).
	Out string `yaml:"out"`

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string `yaml:"out_format"`

	// ConsoleStatus limits console output to these outcome statuses (see --console-status).
	// Allowed values: pushed, pr, error. Empty means all.
	ConsoleStatus []string `yaml:"console_status"`

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool `yaml:"no_console"`
}

type Runtime struct {
	// Concurrency is the number of repositories synced at once (see --concurrency,
	// PROPAGATE_CONCURRENCY). Must be >= 1.
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds the whole run (see --timeout). Zero means no deadline.
	Timeout time.Duration `yaml:"timeout"`

	// Verbose enables debug logging and full error details (see --verbose).
	Verbose bool `yaml:"verbose"`
}

func New() *Config {
	return &Config{
		Template: Template{
			Repo:   DefaultTemplateRepo,
			Branch: DefaultTemplateBranch,
		},
		Discovery: Discovery{
			Owner:   DefaultOwner,
			Topic:   DefaultTopic,
			PerPage: DefaultPerPage,
		},
		Sync: Sync{
			Branch:           DefaultSyncBranch,
			BranchPrefix:     DefaultBranchPrefix,
			CommitMessage:    DefaultCommitMessage,
			PullRequestTitle: DefaultPullRequestTitle,
			PullRequestBody:  DefaultPullRequestBody,
			AuthorName:       DefaultAuthorName,
			AuthorEmail:      DefaultAuthorEmail,
		},
		GitHub: GitHub{
			WebURL: DefaultWebURL,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: DefaultConcurrency,
			Timeout:     DefaultTimeout,
		},
	}
}

func (c *Config) Validate() error {
	c.Discovery.Exclude = splitCommaList(c.Discovery.Exclude)

	// Template identity
	c.Template.Repo = strings.TrimSpace(c.Template.Repo)
	if _, _, err := SplitOwnerRepo(c.Template.Repo); err != nil {
		return fmt.Errorf("invalid --template value: %w", err)
	}
	c.Template.Branch = strings.TrimSpace(c.Template.Branch)
	if c.Template.Branch == "" {
		return errors.New("--template-branch must not be empty")
	}

	// Discovery
	c.Discovery.Owner = strings.TrimSpace(c.Discovery.Owner)
	if c.Discovery.Owner == "" || strings.Contains(c.Discovery.Owner, "/") {
		return fmt.Errorf("invalid --owner value %q: expected a user or organization name", c.Discovery.Owner)
	}
	c.Discovery.Topic = strings.TrimSpace(c.Discovery.Topic)
	if c.Discovery.Topic == "" {
		return errors.New("--topic must not be empty")
	}
	if c.Discovery.PerPage < 1 || c.Discovery.PerPage > maxPerPage {
		return fmt.Errorf("discovery.per_page must be between 1 and %d, got %d", maxPerPage, c.Discovery.PerPage)
	}

	// Sync
	c.Sync.Branch = strings.TrimSpace(c.Sync.Branch)
	if c.Sync.Branch == "" {
		return errors.New("--sync-branch must not be empty")
	}
	c.Sync.BranchPrefix = strings.TrimSpace(c.Sync.BranchPrefix)
	if c.Sync.BranchPrefix == "" {
		return errors.New("--branch-prefix must not be empty")
	}
	if strings.ContainsAny(c.Sync.BranchPrefix, " \t~^:?*[\\") {
		return fmt.Errorf("invalid --branch-prefix %q: not a valid git ref component", c.Sync.BranchPrefix)
	}
	if strings.TrimSpace(c.Sync.CommitMessage) == "" {
		return errors.New("sync.commit_message must not be empty")
	}
	if strings.TrimSpace(c.Sync.PullRequestTitle) == "" {
		return errors.New("sync.pull_request_title must not be empty")
	}
	if strings.TrimSpace(c.Sync.AuthorName) == "" || strings.TrimSpace(c.Sync.AuthorEmail) == "" {
		return errors.New("sync.author_name and sync.author_email must not be empty")
	}

	// GitHub endpoints
	c.GitHub.WebURL = strings.TrimRight(strings.TrimSpace(c.GitHub.WebURL), "/")
	if c.GitHub.WebURL == "" {
		c.GitHub.WebURL = DefaultWebURL
	}
	if err := validateHTTPURL(c.GitHub.WebURL); err != nil {
		return fmt.Errorf("invalid github.web_url: %w", err)
	}
	c.GitHub.APIURL = strings.TrimSpace(c.GitHub.APIURL)
	if c.GitHub.APIURL != "" {
		if err := validateHTTPURL(c.GitHub.APIURL); err != nil {
			return fmt.Errorf("invalid github.api_url: %w", err)
		}
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	c.Output.ConsoleStatus = splitCommaList(c.Output.ConsoleStatus)
	for i, st := range c.Output.ConsoleStatus {
		st = normalizeEnumValue(st)
		if st != "pushed" && st != "pr" && st != "error" {
			return fmt.Errorf("unsupported --console-status: %s (must be any of: pushed, pr, error)", st)
		}
		c.Output.ConsoleStatus[i] = st
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return fmt.Errorf("--concurrency must be >= 1, got %d", c.Runtime.Concurrency)
	}
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}

	return nil
}

// SplitOwnerRepo splits an OWNER/NAME identifier.
func SplitOwnerRepo(sel string) (owner string, name string, err error) {
	parts := strings.Split(sel, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q; expected owner/name", sel)
	}
	return parts[0], parts[1], nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
