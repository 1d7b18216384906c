package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/service/commands"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
)

// Outcomes reported to the Recorder.
const (
	OutcomeSent     = "sent"
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
)

// LotLister enumerates the lots a reminder covers.
type LotLister interface {
	ListLots(ctx context.Context, status string) ([]models.Lot, error)
}

// EntryLoader reads what is recorded for a lot on a date.
type EntryLoader interface {
	LoadEntryState(ctx context.Context, lotID string, date farmtime.Date) (*dailyentry.EntryState, error)
}

// Notifier delivers the reminder text.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Recorder counts reminder runs.
type Recorder interface {
	ReminderSent(outcome string)
}

// Gap lists the metrics still missing for one lot.
type Gap struct {
	Lot     models.Lot
	Missing []models.MetricKind
	// Err is set when the lot's entry could not be read.
	Err error
}

// Service builds the daily "missing entries" reminder.
type Service struct {
	lots      LotLister
	entries   EntryLoader
	notifier  Notifier
	recorder  Recorder
	tz        farmtime.TimezoneContext
	lotStatus string
	logger    *zap.Logger
}

// NewService wires a reminder service. notifier and recorder may be nil.
func NewService(lots LotLister, entries EntryLoader, notifier Notifier, recorder Recorder, tz farmtime.TimezoneContext, lotStatus string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		lots:      lots,
		entries:   entries,
		notifier:  notifier,
		recorder:  recorder,
		tz:        tz,
		lotStatus: lotStatus,
		logger:    logger,
	}
}

// Gaps returns the lots with at least one expected metric missing on date.
// A lot whose entry cannot be read is reported with Err set.
func (s *Service) Gaps(ctx context.Context, date farmtime.Date) ([]Gap, error) {
	lots, err := s.lots.ListLots(ctx, s.lotStatus)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	var gaps []Gap
	for _, lot := range lots {
		if err := ctx.Err(); err != nil {
			return gaps, err
		}
		state, err := s.entries.LoadEntryState(ctx, lot.ID, date)
		if err != nil {
			s.logger.Warn("reminder could not read entry", zap.String("lot_id", lot.ID), zap.Error(err))
			gaps = append(gaps, Gap{Lot: lot, Err: err})
			continue
		}
		if missing := state.Values.Missing(commands.RelevantMetrics(state.Lot)...); len(missing) > 0 {
			gaps = append(gaps, Gap{Lot: state.Lot, Missing: missing})
		}
	}
	return gaps, nil
}

// Compose renders gaps as a message; it is empty when nothing is missing.
func Compose(date farmtime.Date, gaps []Gap) string {
	if len(gaps) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Daily entries still missing for %s:", date)
	for _, g := range gaps {
		if g.Err != nil {
			fmt.Fprintf(&b, "\n- %s: could not be checked", g.Lot.Label())
			continue
		}
		names := make([]string, len(g.Missing))
		for i, m := range g.Missing {
			names[i] = string(m)
		}
		fmt.Fprintf(&b, "\n- %s: %s", g.Lot.Label(), strings.Join(names, ", "))
	}
	return b.String()
}

// Run checks today's entries and notifies when something is missing.
func (s *Service) Run(ctx context.Context) error {
	today := s.tz.Today()
	gaps, err := s.Gaps(ctx, today)
	if err != nil {
		s.record(OutcomeFailed)
		return err
	}

	message := Compose(today, gaps)
	if message == "" {
		s.logger.Info("all daily entries recorded", zap.Stringer("date", today))
		s.record(OutcomeComplete)
		return nil
	}

	if s.notifier == nil {
		s.record(OutcomeFailed)
		return errors.New("no notifier configured")
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		s.record(OutcomeFailed)
		return fmt.Errorf("send reminder: %w", err)
	}

	s.logger.Info("reminder sent", zap.Stringer("date", today), zap.Int("lots", len(gaps)))
	s.record(OutcomeSent)
	return nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.ReminderSent(outcome)
	}
}
