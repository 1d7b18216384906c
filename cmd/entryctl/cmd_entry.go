package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/commands"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
)

func newLoadCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "load <lot>",
		Short: "Show what is recorded for a lot on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.resolveDate(date)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			state, err := a.coord.LoadEntryState(ctx, args[0], day)
			if err != nil {
				return errors.New(commands.DescribeError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), commands.FormatStatus(state))
			next := make([]string, 0, 4)
			for _, m := range commands.RelevantMetrics(state.Lot) {
				next = append(next, fmt.Sprintf("%s=%s", m, state.ModeFor(m)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Next writes: %s", strings.Join(next, ", "))
			if state.Version != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (version %s)", state.Version)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Entry date as YYYY-MM-DD (default: today in the farm timezone)")
	return cmd
}

func newRecordCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "record <metric> <lot> <values...> [key=value...]",
		Short: "Record one metric, creating or updating the day's entry",
		Long: `Records a metric the same way a WhatsApp command does.

` + commands.HelpText,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := models.ParseMetricKind(args[0]); !ok {
				return fmt.Errorf("unknown metric %q", args[0])
			}
			text := strings.Join(args, " ")
			if date != "" {
				text += " date=" + date
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			reply, err := a.dispatch.HandleCommand(ctx, models.ParseCommand(text), "cli:"+a.operator)
			if err != nil {
				return errors.New(commands.DescribeError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Entry date as YYYY-MM-DD (default: today in the farm timezone)")
	return cmd
}

func newStockCmd(a *app) *cobra.Command {
	stock := &cobra.Command{
		Use:   "stock",
		Short: "Inspect feed stocks",
	}
	stock.AddCommand(&cobra.Command{
		Use:   "check <lot> <stock> <kg>",
		Short: "Preview whether a stock covers a feed quantity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kg, err := dailyentry.ParseQuantity(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			s, check, err := a.coord.StockCheck(ctx, args[0], args[1], kg)
			if err != nil {
				return errors.New(commands.DescribeError(err))
			}
			verdict := "sufficient"
			if !check.Sufficient {
				verdict = "INSUFFICIENT"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stock %s (%s): %s kg available, %s kg requested, %s kg remaining: %s\n",
				s.ID, s.FeedType, s.QuantityKg.StringFixed(2), formatKg(kg), check.RemainderKg.StringFixed(2), verdict)
			return nil
		},
	})
	return stock
}

func (a *app) resolveDate(raw string) (farmtime.Date, error) {
	if raw == "" {
		return a.tz.Today(), nil
	}
	return farmtime.ParseDate(raw)
}

func formatKg(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
