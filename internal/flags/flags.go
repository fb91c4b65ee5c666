package flags

// Package flags defines canonical CLI flag names shared across the CLI and engine.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Discovery.Owner, flags.FlagOwner, "", "...")
const (
	// Template
	FlagTemplate       = "template"
	FlagTemplateBranch = "template-branch"

	// Discovery
	FlagOwner   = "owner"
	FlagTopic   = "topic"
	FlagExclude = "exclude"
	FlagDryRun  = "dry-run"

	// Sync
	FlagSyncBranch   = "sync-branch"
	FlagBranchPrefix = "branch-prefix"
	FlagWorkDir      = "work-dir"
	FlagKeepClones   = "keep-clones"

	// Output
	FlagConsoleFormat = "console-format"
	FlagConsoleStatus = "console-status"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagNoConsole     = "no-console"

	// Runtime
	FlagConfig      = "config"
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagVerbose     = "verbose"
)
