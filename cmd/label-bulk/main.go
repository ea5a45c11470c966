package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// errFailures signals a run that finished but left failed issues behind
var errFailures = errors.New("run finished with failures")

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "label-bulk",
		Short: "Bulk-edit Jira labels in resumable batches",
		Long: `label-bulk applies label additions and removals to the issues matched by
JQL queries. Batches are read from a JSON, YAML or TOML file, processed in
order with rate limiting and retries, and checkpointed per issue so an
interrupted run picks up where it stopped.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
