// Package main provides the echo server executable: an HTTP API that publishes echo
// requests and a dispatcher that consumes, retries and dead-letters them.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	isDebug bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "echo-server",
		Short: "Echo message pipeline with retries and dead-letter routing",
		RunE:  runServe,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file (optional)")
	root.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatcher",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  runMigrate,
	})

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
