package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"templatesync/internal"
	"templatesync/internal/config"
	"templatesync/internal/flags"
	gh "templatesync/internal/github"
)

// syncRunner is the part of engine.Engine the sync command drives.
type syncRunner interface {
	Run(ctx context.Context, cfg *config.Config) int
}

// newEngine builds the engine once configuration and credential are known.
// Tests replace it.
var newEngine = func(ctx context.Context, cfg *config.Config, token string) (syncRunner, error) {
	eng, err := internal.BuildEngine(ctx, cfg, token)
	if err != nil {
		return nil, err
	}
	return eng, nil
}

type syncOptions struct {
	// flagCfg receives flag values; only flags the user set are applied.
	flagCfg    *config.Config
	configPath string
}

// overlayChangedFlags copies one flag-bound setting from src to dst.
var overlayChangedFlags = map[string]func(dst, src *config.Config){
	flags.FlagTemplate:       func(dst, src *config.Config) { dst.Template.Repo = src.Template.Repo },
	flags.FlagTemplateBranch: func(dst, src *config.Config) { dst.Template.Branch = src.Template.Branch },
	flags.FlagOwner:          func(dst, src *config.Config) { dst.Discovery.Owner = src.Discovery.Owner },
	flags.FlagTopic:          func(dst, src *config.Config) { dst.Discovery.Topic = src.Discovery.Topic },
	flags.FlagExclude:        func(dst, src *config.Config) { dst.Discovery.Exclude = src.Discovery.Exclude },
	flags.FlagDryRun:         func(dst, src *config.Config) { dst.Discovery.DryRun = src.Discovery.DryRun },
	flags.FlagSyncBranch:     func(dst, src *config.Config) { dst.Sync.Branch = src.Sync.Branch },
	flags.FlagBranchPrefix:   func(dst, src *config.Config) { dst.Sync.BranchPrefix = src.Sync.BranchPrefix },
	flags.FlagWorkDir:        func(dst, src *config.Config) { dst.Sync.WorkDir = src.Sync.WorkDir },
	flags.FlagKeepClones:     func(dst, src *config.Config) { dst.Sync.KeepClones = src.Sync.KeepClones },
	flags.FlagConsoleFormat:  func(dst, src *config.Config) { dst.Output.ConsoleFormat = src.Output.ConsoleFormat },
	flags.FlagConsoleStatus:  func(dst, src *config.Config) { dst.Output.ConsoleStatus = src.Output.ConsoleStatus },
	flags.FlagOut:            func(dst, src *config.Config) { dst.Output.Out = src.Output.Out },
	flags.FlagOutFormat:      func(dst, src *config.Config) { dst.Output.OutFormat = src.Output.OutFormat },
	flags.FlagNoConsole:      func(dst, src *config.Config) { dst.Output.NoConsole = src.Output.NoConsole },
	flags.FlagConcurrency:    func(dst, src *config.Config) { dst.Runtime.Concurrency = src.Runtime.Concurrency },
	flags.FlagTimeout:        func(dst, src *config.Config) { dst.Runtime.Timeout = src.Runtime.Timeout },
}

// resolveConfig layers defaults, the config file, the environment and the
// flags the user set, in that order, and validates the result.
func (o *syncOptions) resolveConfig(cmd *cobra.Command, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.New()
	if o.configPath != "" {
		if err := config.LoadFile(o.configPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	for name, apply := range overlayChangedFlags {
		if cmd.Flags().Changed(name) {
			apply(cfg, o.flagCfg)
		}
	}
	if cmd.Flags().Changed(flags.FlagVerbose) {
		cfg.Runtime.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runContext derives the run's context. A run is only given a deadline when
// --timeout is set.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func runSync(cmd *cobra.Command, o *syncOptions, lookup config.LookupFunc, stderr io.Writer) int {
	// The credential is checked before anything else touches the network or disk.
	token, err := gh.ResolveAuthToken(lookup)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := o.resolveConfig(cmd, lookup)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Runtime.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}

	ctx, cancel := runContext(cmd.Context(), cfg.Runtime.Timeout)
	defer cancel()

	eng, err := newEngine(ctx, cfg, token)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	return eng.Run(ctx, cfg)
}

func newSyncCommand() (*cobra.Command, *syncOptions) {
	o := &syncOptions{flagCfg: config.New()}
	cfg := o.flagCfg

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge the template into every downstream repository",
		Long: `Merge the template's latest state into every repository created from it.

Downstream repositories are found with the GitHub search query
"topic:<topic> user:<owner>". For each one, templatesync clones it, fetches the
template as remote "upstream" and merges upstream/<template-branch> into the
sync branch:

  - clean merge: the sync branch is pushed directly            [PUSHED]
  - otherwise:   the merge result, conflict markers included, is
                 committed to <branch-prefix><timestamp>, pushed, and a pull
                 request against the sync branch is opened        [PR]
  - any other failure is reported for that repository only       [ERROR]

Authentication:
  TEMPLATE_SYNC_PAT must hold a personal access token with repo scope on every
  downstream repository. It is used for the search API, git over HTTPS and
  pull request creation, and is never written to disk or logged.

Configuration (lowest to highest precedence):
  1) built-in defaults
  2) --config YAML file; keys: template.{repo,branch},
     discovery.{owner,topic,per_page,exclude},
     sync.{branch,branch_prefix,commit_message,pull_request_title,
           pull_request_body,author_name,author_email,work_dir,keep_clones},
     github.{api_url,web_url},
     output.{console_format,console_status,out,out_format,no_console},
     runtime.{concurrency,timeout,verbose}
     Values may reference environment variables as ${NAME}.
     runtime.timeout (--timeout) defaults to 0: the run has no deadline.
  3) PROPAGATE_CONCURRENCY environment variable
  4) command-line flags

Exit codes:
  0 = every repository has an outcome (including [ERROR] outcomes)
  1 = missing credential, invalid configuration or failed discovery

Examples:
  export TEMPLATE_SYNC_PAT="<token>"
  templatesync sync
  templatesync sync --owner acme --topic from-template-web --template acme/web-template
  PROPAGATE_CONCURRENCY=8 templatesync sync --no-console --out outcomes.ndjson
`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runSync(cmd, o, os.LookupEnv, os.Stderr))
		},
	}

	// MAINTAINER NOTE: every flag bound to cfg below needs an entry in overlayChangedFlags.

	// Template
	cmd.Flags().StringVar(&cfg.Template.Repo, flags.FlagTemplate, cfg.Template.Repo, "Template repository as OWNER/NAME")
	cmd.Flags().StringVar(&cfg.Template.Branch, flags.FlagTemplateBranch, cfg.Template.Branch, "Template branch to merge from")

	// Discovery
	cmd.Flags().StringVar(&cfg.Discovery.Owner, flags.FlagOwner, cfg.Discovery.Owner, "User or organization owning the downstream repositories")
	cmd.Flags().StringVar(&cfg.Discovery.Topic, flags.FlagTopic, cfg.Discovery.Topic, "Topic carried by downstream repositories")
	cmd.Flags().StringSliceVar(&cfg.Discovery.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches OWNER/NAME, else matches the name")
	cmd.Flags().BoolVar(&cfg.Discovery.DryRun, flags.FlagDryRun, false, "List the downstream repositories without syncing them (still requires the token)")

	// Sync
	cmd.Flags().StringVar(&cfg.Sync.Branch, flags.FlagSyncBranch, cfg.Sync.Branch, "Downstream branch the template is merged into")
	cmd.Flags().StringVar(&cfg.Sync.BranchPrefix, flags.FlagBranchPrefix, cfg.Sync.BranchPrefix, "Name prefix of conflict branches")
	cmd.Flags().StringVar(&cfg.Sync.WorkDir, flags.FlagWorkDir, "", "Parent directory for working clones (default: OS temp dir)")
	cmd.Flags().BoolVar(&cfg.Sync.KeepClones, flags.FlagKeepClones, false, "Leave working clones on disk for inspection")

	// Output
	cmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	cmd.Flags().StringSliceVar(&cfg.Output.ConsoleStatus, flags.FlagConsoleStatus, nil, "Only print outcomes with these statuses (pushed, pr, error). Comma-separated.")
	cmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured outcomes to this path")
	cmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	cmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --out)")

	// Runtime
	cmd.Flags().StringVarP(&o.configPath, flags.FlagConfig, "c", "", "Path to a YAML config file")
	cmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Repositories synced at once (env: PROPAGATE_CONCURRENCY)")
	cmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Deadline for the whole run; 0 runs without one. Work in flight at the deadline fails")

	return cmd, o
}

func init() {
	cmd, _ := newSyncCommand()
	rootCmd.AddCommand(cmd)
}
