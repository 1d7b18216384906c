// Command entryctl reads and records daily entries from a terminal, using the
// same coordinator as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/cache"
	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/commands"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
	"github.com/mamadbah2/flockbook/pkg/logger"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	envFile  string
	verbose  bool
	timeout  time.Duration
	operator string

	logger   *zap.Logger
	tz       farmtime.TimezoneContext
	coord    *dailyentry.Coordinator
	dispatch commands.Dispatcher
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "entryctl",
		Short: "Read and record daily flock entries",
		Long: `entryctl talks to the farm backend through the daily entry coordinator:
create or update is decided from what is stored for the date, never guessed.

Examples:
  entryctl load F1 --date 2025-06-01
  entryctl record water F1 80
  entryctl record feed F1 50 type=grower stock=S1
  entryctl stock check F1 S1 12.5`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Environment file to load (default: .env when present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Operation timeout")
	root.PersistentFlags().StringVar(&a.operator, "operator", os.Getenv("USER"), "Name recorded as the submission source")

	root.AddCommand(newLoadCmd(a), newRecordCmd(a), newStockCmd(a))
	return root
}

func (a *app) setup() error {
	if a.coord != nil {
		return nil
	}
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.logger, err = logger.New(level)
	if err != nil {
		return err
	}

	a.tz, err = farmtime.New(cfg.Farm.Timezone)
	if err != nil {
		return err
	}

	a.coord = dailyentry.NewCoordinator(
		poultry.NewClient(cfg.Backend),
		a.tz,
		a.logger.Named("svc.dailyentry"),
		dailyentry.WithCache(cache.New(cfg.Farm.CacheTTL)),
	)
	a.dispatch = commands.NewService(a.coord, a.tz, a.logger.Named("svc.commands"))
	return nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, a.timeout)
}
