// Command deepsoc runs the DeepSOC investigation engine: the HTTP API and
// the five role worker pools (Captain, Manager, Operator, Executor,
// Expert) that carry an Event from intake to resolution.
//
// Each role runs as its own subcommand so a deployment can scale them
// independently (e.g. three Manager pods, one Expert pod):
//
//	deepsoc serve            # HTTP API only
//	deepsoc captain          # Captain worker pool
//	deepsoc manager          # Manager worker pool
//	deepsoc operator         # Operator worker pool
//	deepsoc executor         # Executor worker pool
//	deepsoc expert           # Expert summarizer pool + lifecycle manager
//	deepsoc init             # bootstrap an admin user and seed settings
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "deepsoc",
		Short:        "DeepSOC AI-driven security operations workflow engine",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildCaptainCmd(),
		buildManagerCmd(),
		buildOperatorCmd(),
		buildExecutorCmd(),
		buildExpertCmd(),
		buildInitCmd(),
	)

	return root
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
