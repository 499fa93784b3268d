// Package cli implements the agentgen command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	timeout  time.Duration

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentgen",
		Short: "Multi-agent workflow generator",
		Long: "agentgen turns plain-language requirements into multi-agent workflow code for CrewAI, " +
			"LangGraph, BeeAI, ReAct and watsonx Orchestrate, and plans and builds agent projects.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			log = logging.New(nil, resolveLogLevel(""))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agentgen/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "deadline for generate, plan and build (0 disables)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newTargetsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// resolveLogLevel picks the flag, then AGENTGEN_LOG_LEVEL, then the
// configured level, then info.
func resolveLogLevel(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	if env := os.Getenv("AGENTGEN_LOG_LEVEL"); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return "info"
}

// commandContext is cancelled on SIGINT/SIGTERM and after --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
