// Package app wires configuration, logging and the reviewbot components
// into a cobra command tree.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewbot/internal/config"
)

// Version is overwritten at build time with -ldflags.
var Version = "dev"

type runtime struct {
	configPath string
	logLevel   string

	cfg config.Config
	log *zap.Logger

	stdin  io.Reader
	stdout io.Writer
}

// NewRootCommand builds the reviewbot command tree. I/O streams are
// injectable for tests.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rt := &runtime{stdin: stdin, stdout: stdout}

	root := &cobra.Command{
		Use:   "reviewbot",
		Short: "Watches Redmine tickets and announces reviews of support answers",
		Long: `reviewbot polls Redmine for recently updated tickets, recovers the latest
question/answer exchange from each one, has the answer reviewed, and posts
the outcome to Teams and/or Slack.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return rt.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "path to config.yaml (overrides CONFIG_PATH)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(rt),
		newClassifyCommand(rt),
		newSegmentsCommand(rt),
		newVerdictCommand(rt),
		newStateCommand(rt),
		newVersionCommand(),
	)
	return root
}

func (rt *runtime) setup() error {
	if rt.configPath != "" {
		if err := os.Setenv("CONFIG_PATH", rt.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	log, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.log = log
	return nil
}

// Main runs the root command and exits non-zero on failure.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reviewbot version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reviewbot %s\n", Version)
		},
	}
}
