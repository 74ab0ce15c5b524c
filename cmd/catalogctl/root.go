package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"shopbot-api/internal/app"
	"shopbot-api/internal/config"
)

// commandContext lazily opens the catalog stack once per invocation.
type commandContext struct {
	verbose *bool
	timeout *time.Duration
	load    func() (*config.Config, error)

	once       sync.Once
	components *app.Components
	err        error
}

func newCommandContext(verbose *bool, timeout *time.Duration, load func() (*config.Config, error)) *commandContext {
	return &commandContext{verbose: verbose, timeout: timeout, load: load}
}

func (c *commandContext) open(stderr io.Writer) (*app.Components, error) {
	c.once.Do(func() {
		cfg, err := c.load()
		if err != nil {
			c.err = err
			return
		}
		level := slog.LevelWarn
		if c.verbose != nil && *c.verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
		c.components, c.err = app.Open(cfg, logger)
	})
	return c.components, c.err
}

// withCatalog runs fn with opened components and shuts them down afterwards.
func (c *commandContext) withCatalog(cmd *cobra.Command, fn func(ctx context.Context, comps *app.Components) error) error {
	comps, err := c.open(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout != nil && *c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *c.timeout)
		defer cancel()
	}

	runErr := fn(ctx, comps)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := comps.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(config.Load)
}

func newRootCommandWith(load func() (*config.Config, error)) *cobra.Command {
	var verbose bool
	var timeout time.Duration

	ctx := newCommandContext(&verbose, &timeout, load)

	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect and refresh the item catalog cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall time limit for the command")

	addCommands(rootCmd, ctx)
	return rootCmd
}

func addCommands(rootCmd *cobra.Command, ctx *commandContext) {
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newItemCommand(ctx))
	rootCmd.AddCommand(newRefreshCommand(ctx))
	rootCmd.AddCommand(newPricesCommand(ctx))
	rootCmd.AddCommand(newIdentitiesCommand(ctx))
}
