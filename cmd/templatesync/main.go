package main

import (
	"os"

	logger "github.com/sirupsen/logrus"

	"templatesync/internal/cli"
)

// These variables are populated by the build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(logger.DebugLevel)
	}

	cli.SetBuildInfo(version, commit, date)
	cli.Execute()
}
