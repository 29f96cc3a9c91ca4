package main

import "github.com/spf13/cobra"

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildCaptainCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "captain",
		Short: "Run the Captain worker pool (Event triage and Task planning)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCaptain(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildManagerCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Run the Manager worker pool (Task planning into Actions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManager(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildOperatorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Run the Operator worker pool (Action planning into Commands)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildExecutorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "executor",
		Short: "Run the Executor worker pool (Command dispatch to SOAR)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutor(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildExpertCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "expert",
		Short: "Run the Expert summarizer pool and round-lifecycle manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpert(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	return cmd
}

func buildInitCmd() *cobra.Command {
	var (
		configPath string
		username   string
		password   string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap an admin user and seed default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), configPath, username, password)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	cmd.Flags().StringVar(&username, "admin-username", "admin", "Username for the bootstrap admin account")
	cmd.Flags().StringVar(&password, "admin-password", "", "Password for the bootstrap admin account (required)")
	return cmd
}
