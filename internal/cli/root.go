package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"templatesync/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// verbose is bound to the persistent --verbose flag.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "templatesync",
	Short: "Propagate a template repository's changes to every repository created from it",
	Long: `templatesync finds the repositories instantiated from a template (by GitHub topic)
and merges the template's latest state into each of them.

A clean merge is pushed directly. When the merge does not apply cleanly, the
result is pushed to a fresh branch and a pull request is opened instead.

Examples:
	# Sync every downstream repository of the default template
	export TEMPLATE_SYNC_PAT="<token>"
	templatesync sync

	# List what would be synced
	templatesync sync --dry-run

	# Print build info
	templatesync version`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call and full error details)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
