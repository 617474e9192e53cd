// Package cli implements the bot's command-line dispatcher (§4.13): three
// one-shot subcommands instead of the base userbot's interactive readline
// REPL, since a syndication run has no long-lived session to drive
// commands against — it loads config, does its work, and exits.
//
// Grounded on the sibling example repository Sumatoshi-tech-codefang's
// cobra root command (PersistentFlags for global switches, one
// *cobra.Command per subcommand returned by a constructor function, exit
// code 1 on error printed to stderr).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"feedbot/internal/app"
	"feedbot/internal/infra/config"
	"feedbot/internal/infra/logger"
)

// errColor highlights the final "Error: ..." line written on a fatal failure.
// color already no-ops to plain text when stderr isn't a terminal (e.g. cron,
// CI, a piped log collector), so this never pollutes redirected output.
var errColor = color.New(color.FgRed, color.Bold)

var (
	envFile      string
	dryRunFlag   bool
	dryRunWasSet bool
)

// Execute builds the root command and runs it against os.Args. Exit codes:
// 0 on success, 1 on a fatal config error or an unhandled run failure.
// Partial parser/publisher failures never reach this codepath — the
// Orchestrator logs and continues past them.
func Execute() int {
	root := &cobra.Command{
		Use:   "feedbot",
		Short: "A multi-source content syndication bot",
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to the .env file")
	root.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "override publisher.dry_run for this invocation")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		dryRunWasSet = cmd.Flags().Changed("dry-run")
		return loadConfig()
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newPublishQueueCommand())
	root.AddCommand(newPublishTestCommand())

	if err := root.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig() error {
	if err := config.Load(envFile); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(config.Env().LogLevel)
	for _, w := range config.Warnings() {
		logger.Warnf("config: %s", w)
	}
	return nil
}

func newApp() (*app.App, error) {
	var override *bool
	if dryRunWasSet {
		override = &dryRunFlag
	}
	return app.New(override)
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one full ingest+publish cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Run(context.Background())
		},
	}
}

func newPublishQueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-queue",
		Short: "Skip ingestion and drain the existing queue only",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.PublishQueue(context.Background())
		},
	}
}

func newPublishTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-test",
		Short: "Enqueue and publish one synthetic post, for smoke-testing remote credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.PublishTest(context.Background())
		},
	}
}
