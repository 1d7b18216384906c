package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// HelpText lists the accepted commands.
const HelpText = `Commands (add date=YYYY-MM-DD to record another day):
/feed <lot> <kg> [type=grower] [stock=<stock id>]
/mortality <lot> <count> [cause]
/weight <lot> <average g> [sample=10]
/eggs <lot> <normal> [cracked] [dirty] [small]
/water <lot> <liters>
/status <lot>`

// EntryService is the part of the daily entry coordinator commands use.
type EntryService interface {
	Upsert(ctx context.Context, lotID string, date farmtime.Date, payload dailyentry.MetricPayload, source string) (*dailyentry.SubmissionResult, error)
	LoadEntryState(ctx context.Context, lotID string, date farmtime.Date) (*dailyentry.EntryState, error)
}

// Dispatcher executes parsed commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, source string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	entries EntryService
	tz      farmtime.TimezoneContext
	logger  *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(entries EntryService, tz farmtime.TimezoneContext, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries: entries,
		tz:      tz,
		logger:  logger,
	}
}

// HandleCommand records or reports daily entries and returns the reply text.
// source names the issuer in the submission journal, e.g. "whatsapp:<number>".
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, source string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("source", source), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandHelp:
		return HelpText, nil
	case models.CommandStatus:
		return s.status(ctx, cmd)
	case models.CommandUnknown:
		return "", ErrUnsupportedCommand
	}

	metric, ok := cmd.Metric()
	if !ok {
		return "", ErrUnsupportedCommand
	}
	if len(cmd.Args) < 2 {
		return "", fmt.Errorf("%w: expected a lot and a value", ErrInvalidArguments)
	}
	lotID := cmd.Args[0]
	date, err := s.commandDate(cmd)
	if err != nil {
		return "", err
	}
	payload, err := buildPayload(metric, cmd)
	if err != nil {
		return "", err
	}

	result, err := s.entries.Upsert(ctx, lotID, date, payload, source)
	if err != nil {
		return "", err
	}

	verb := "recorded"
	if result.Mode == dailyentry.ModeUpdate {
		verb = "updated"
	}
	message := fmt.Sprintf("%s %s for lot %s on %s: %s.", titleCase(string(metric)), verb, lotID, date, describePayload(payload))
	if result.Message != "" {
		message += "\n" + result.Message
	}
	return message, nil
}

func (s *Service) status(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) < 1 {
		return "", fmt.Errorf("%w: expected a lot", ErrInvalidArguments)
	}
	date, err := s.commandDate(cmd)
	if err != nil {
		return "", err
	}
	state, err := s.entries.LoadEntryState(ctx, cmd.Args[0], date)
	if err != nil {
		return "", err
	}
	return FormatStatus(state), nil
}

func (s *Service) commandDate(cmd models.Command) (farmtime.Date, error) {
	raw, ok := cmd.Options["date"]
	if !ok {
		return s.tz.Today(), nil
	}
	date, err := farmtime.ParseDate(raw)
	if err != nil {
		return farmtime.Date{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return date, nil
}

// RelevantMetrics lists the metrics expected daily for a lot.
func RelevantMetrics(lot models.Lot) []models.MetricKind {
	metrics := []models.MetricKind{models.MetricFeed, models.MetricMortality, models.MetricWater}
	if lot.IsLayer() {
		metrics = append(metrics, models.MetricEggs)
	}
	return metrics
}

// FormatStatus summarises what is recorded for a lot on a date.
func FormatStatus(state *dailyentry.EntryState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lot %s on %s:", state.Lot.Label(), state.Date)
	v := state.Values
	if v.Feed != nil {
		fmt.Fprintf(&b, "\n- feed: %s kg", formatNumber(v.Feed.QuantityKg))
	}
	if v.Mortality != nil {
		fmt.Fprintf(&b, "\n- mortality: %d (%s)", v.Mortality.Count, v.Mortality.Cause)
	}
	if v.Weight != nil {
		fmt.Fprintf(&b, "\n- weight: %s g over %d birds", formatNumber(v.Weight.AverageWeightG), v.Weight.SampleSize)
	}
	if v.Eggs != nil {
		fmt.Fprintf(&b, "\n- eggs: %d", v.Eggs.Normal+v.Eggs.Cracked+v.Eggs.Dirty+v.Eggs.Small)
	}
	if v.Water != nil {
		fmt.Fprintf(&b, "\n- water: %s L", formatNumber(v.Water.Liters))
	}
	if !state.Exists {
		b.WriteString("\nNothing recorded yet.")
	}
	if missing := v.Missing(RelevantMetrics(state.Lot)...); len(missing) > 0 && state.Exists {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		fmt.Fprintf(&b, "\nMissing: %s.", strings.Join(names, ", "))
	}
	return b.String()
}

// DescribeError turns a failure into a reply for the worker.
func DescribeError(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedCommand):
		return "Unknown command.\n" + HelpText
	case errors.Is(err, ErrInvalidArguments):
		return "Could not read that command: " + strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()+": ") + ".\n" + HelpText
	case errors.Is(err, dailyentry.ErrSubmissionInFlight):
		return "This entry is already being saved, please wait."
	}
	if e, ok := dailyentry.AsError(err); ok {
		switch {
		case errors.Is(e, dailyentry.ErrValidationFailed):
			if e.Field != "" {
				return fmt.Sprintf("Not saved: %s %s.", e.Field, e.Message)
			}
			return "Not saved: " + e.Message + "."
		case errors.Is(e, dailyentry.ErrFetchFailed):
			return "Could not check the existing entry, nothing was saved. Try again shortly."
		case errors.Is(e, dailyentry.ErrConflictFailed):
			return "Someone else changed this entry. Send /status to see it, then resend."
		case e.OutcomeUnknown:
			return "The server did not confirm the entry. Send /status before resending."
		case e.Code == poultry.CodeRateLimited:
			return "Please wait before sending again: " + e.Message
		default:
			return "Not saved: " + e.Message
		}
	}
	return "Something went wrong, nothing was confirmed."
}

func buildPayload(metric models.MetricKind, cmd models.Command) (dailyentry.MetricPayload, error) {
	values := cmd.Args[1:]
	switch metric {
	case models.MetricFeed:
		kg, err := parseNumber(values[0])
		if err != nil {
			return nil, err
		}
		feed := dailyentry.FeedInput{QuantityKg: kg, FeedType: strings.ToLower(cmd.Options["type"])}
		if stock := cmd.Options["stock"]; stock != "" {
			feed.DeductFromStock = true
			feed.FeedStockID = stock
		}
		return feed, nil
	case models.MetricMortality:
		count, err := parseCount(values[0])
		if err != nil {
			return nil, err
		}
		cause := cmd.Options["cause"]
		if cause == "" && len(values) > 1 {
			cause = strings.Join(values[1:], "_")
		}
		return dailyentry.MortalityInput{Count: count, Cause: normalizeCause(cause)}, nil
	case models.MetricWeight:
		grams, err := parseNumber(values[0])
		if err != nil {
			return nil, err
		}
		weight := dailyentry.WeightInput{AverageWeightG: grams}
		if raw, ok := cmd.Options["sample"]; ok {
			if weight.SampleSize, err = parseCount(raw); err != nil {
				return nil, err
			}
		}
		return weight, nil
	case models.MetricEggs:
		counts := make([]int, 4)
		for i := 0; i < len(values) && i < len(counts); i++ {
			n, err := parseCount(values[i])
			if err != nil {
				return nil, err
			}
			counts[i] = n
		}
		return dailyentry.EggsInput{Normal: counts[0], Cracked: counts[1], Dirty: counts[2], Small: counts[3]}, nil
	case models.MetricWater:
		liters, err := parseNumber(values[0])
		if err != nil {
			return nil, err
		}
		return dailyentry.WaterInput{Liters: liters}, nil
	default:
		return nil, ErrUnsupportedCommand
	}
}

func describePayload(p dailyentry.MetricPayload) string {
	switch v := p.(type) {
	case dailyentry.FeedInput:
		out := formatNumber(v.QuantityKg) + " kg"
		if v.FeedType != "" {
			out += " of " + v.FeedType
		}
		if v.DeductFromStock {
			out += ", taken from stock " + v.FeedStockID
		}
		return out
	case dailyentry.MortalityInput:
		cause := v.Cause
		if cause == "" {
			cause = models.DefaultMortalityCause
		}
		return fmt.Sprintf("%d birds (%s)", v.Count, cause)
	case dailyentry.WeightInput:
		size := v.SampleSize
		if size == 0 {
			size = models.DefaultWeightSampleSize
		}
		return fmt.Sprintf("%s g average over %d birds", formatNumber(v.AverageWeightG), size)
	case dailyentry.EggsInput:
		return fmt.Sprintf("%d eggs (%d cracked, %d dirty, %d small)", v.Total(), v.Cracked, v.Dirty, v.Small)
	case dailyentry.WaterInput:
		return formatNumber(v.Liters) + " L"
	default:
		return ""
	}
}

func normalizeCause(raw string) string {
	cause := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_"))
	if cause == "" || slices.Contains(models.MortalityCauses, cause) {
		return cause
	}
	// Free text the backend does not know is kept out of the cause field.
	return models.DefaultMortalityCause
}

func parseNumber(raw string) (float64, error) {
	v, err := dailyentry.ParseQuantity(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArguments, raw)
	}
	return v, nil
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalidArguments, raw)
	}
	return n, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
