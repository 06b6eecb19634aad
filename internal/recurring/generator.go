package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/events"
	"practicespace/internal/model"
	"practicespace/internal/pricing"
)

// Store persists series and their instances.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateSeries(ctx context.Context, s *model.RecurringSeries) error
	GetSeries(ctx context.Context, id int64) (*model.RecurringSeries, error)
	ListActiveSeries(ctx context.Context, day time.Time) ([]model.RecurringSeries, error)
	SetSeriesStatus(ctx context.Context, id int64, status model.SeriesStatus) error
	SeriesInstanceExists(ctx context.Context, seriesID int64, date string) (bool, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	CancelFutureSeriesInstances(ctx context.Context, seriesID int64, from time.Time, reason string) (int64, error)
}

// ConflictFinder checks a window against committed intervals, keeping
// buffer clear around other reservations and event blocks.
type ConflictFinder interface {
	FindBufferedConflicts(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID int64) (model.ConflictSet, error)
}

// CostCalculator prices user-owned instances.
type CostCalculator interface {
	CalculateCost(ctx context.Context, userID int64, start, end time.Time) (pricing.Cost, error)
}

// Config holds the expansion rules. Location reports the venue zone at the
// time of each expansion.
type Config struct {
	Buffer                time.Duration
	DefaultMaxAdvanceDays int
	Location              func() *time.Location
}

// SeriesFailure records one series the batch could not expand.
type SeriesFailure struct {
	SeriesID int64  `json:"series_id"`
	Error    string `json:"error"`
}

// BatchResult summarizes a GenerateFutureInstancesForAllSeries run.
type BatchResult struct {
	SeriesProcessed int             `json:"series_processed"`
	Created         int             `json:"created"`
	Placeholders    int             `json:"placeholders"`
	Failures        []SeriesFailure `json:"failures,omitempty"`
}

// Generator expands recurring series into reservations.
type Generator struct {
	store  Store
	finder ConflictFinder
	pricer CostCalculator
	bus    *events.EventBus
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

func NewGenerator(store Store, finder ConflictFinder, pricer CostCalculator, bus *events.EventBus, cfg Config, logger *zerolog.Logger) *Generator {
	if cfg.Location == nil {
		cfg.Location = func() *time.Location { return time.UTC }
	}
	if cfg.DefaultMaxAdvanceDays <= 0 {
		cfg.DefaultMaxAdvanceDays = 90
	}
	l := logger.With().Str("component", "recurring").Logger()
	return &Generator{store: store, finder: finder, pricer: pricer, bus: bus, cfg: cfg, logger: &l, now: time.Now}
}

func (g *Generator) today() time.Time {
	return civil(g.now().In(g.cfg.Location()))
}

// CreateSeries validates and stores an active series. It does not generate
// instances; call GenerateInstances afterwards.
func (g *Generator) CreateSeries(ctx context.Context, s *model.RecurringSeries) error {
	if !s.Owner.Valid() {
		return model.Invalid("owner", "is required")
	}
	rule, err := ParseRule(s.Rule)
	if err != nil {
		return err
	}
	s.Rule = rule.String()
	if s.EndTime <= s.StartTime {
		return model.Invalid("end_time", "must be after start_time")
	}
	if s.SeriesStartDate.IsZero() {
		return model.Invalid("series_start_date", "is required")
	}
	s.SeriesStartDate = civil(s.SeriesStartDate)
	if s.SeriesEndDate != nil {
		end := civil(*s.SeriesEndDate)
		if end.Before(s.SeriesStartDate) {
			return model.Invalid("series_end_date", "must not be before series_start_date")
		}
		s.SeriesEndDate = &end
	}
	if s.MaxAdvanceDays <= 0 {
		s.MaxAdvanceDays = g.cfg.DefaultMaxAdvanceDays
	}
	s.Status = model.SeriesActive

	if err := g.store.CreateSeries(ctx, s); err != nil {
		return err
	}
	g.logger.Info().Int64("series_id", s.ID).Str("owner", s.Owner.String()).Str("rule", s.Rule).Msg("Series created")
	return nil
}

// horizon returns the inclusive civil date range to generate for s.
func (g *Generator) horizon(s *model.RecurringSeries) (time.Time, time.Time) {
	today := g.today()
	from := civil(s.SeriesStartDate)
	if from.Before(today) {
		from = today
	}
	to := today.AddDate(0, 0, s.MaxAdvanceDays)
	if s.SeriesEndDate != nil && civil(*s.SeriesEndDate).Before(to) {
		to = civil(*s.SeriesEndDate)
	}
	return from, to
}

// GenerateInstances creates the missing instances of a series within its
// horizon. Dates that already have a row, including a cancelled
// placeholder, are skipped. A conflicting date gets a cancelled placeholder.
// Inactive or ended series produce nothing.
func (g *Generator) GenerateInstances(ctx context.Context, seriesID int64) ([]model.Reservation, error) {
	s, err := g.store.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive() || s.EndedBefore(g.today()) {
		g.logger.Debug().Int64("series_id", s.ID).Str("status", string(s.Status)).Msg("Series skipped")
		return nil, nil
	}

	rule, err := ParseRule(s.Rule)
	if err != nil {
		return nil, fmt.Errorf("series %d: %w", s.ID, err)
	}

	from, to := g.horizon(s)
	now := g.now()
	var created []model.Reservation
	placeholders := 0
	loc := g.cfg.Location()

	for _, date := range rule.Dates(s.SeriesStartDate, from, to) {
		local := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		start, end := s.StartTime.On(local), s.EndTime.On(local)
		if start.Before(now) {
			continue
		}

		r, err := g.createInstance(ctx, s, date.Format(model.DateLayout), start, end)
		if err != nil {
			return created, fmt.Errorf("series %d on %s: %w", s.ID, date.Format(model.DateLayout), err)
		}
		if r == nil {
			continue
		}
		if r.Status == model.StatusCancelled {
			placeholders++
		}
		created = append(created, *r)
	}

	if len(created) > 0 {
		g.logger.Info().
			Int64("series_id", s.ID).
			Int("created", len(created)-placeholders).
			Int("placeholders", placeholders).
			Msg("Series instances generated")
		g.bus.PublishJSON(events.SeriesGenerated, map[string]any{
			"series_id":    s.ID,
			"created":      len(created) - placeholders,
			"placeholders": placeholders,
		})
	}
	return created, nil
}

// createInstance runs the existence check, conflict scan and insert for one
// date in a single write transaction. It returns nil when the date exists.
func (g *Generator) createInstance(ctx context.Context, s *model.RecurringSeries, date string, start, end time.Time) (*model.Reservation, error) {
	var out *model.Reservation
	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		exists, err := g.store.SeriesInstanceExists(ctx, s.ID, date)
		if err != nil || exists {
			return err
		}

		seriesID := s.ID
		r := &model.Reservation{
			Kind:              model.KindRehearsal,
			Owner:             s.Owner,
			ReservedAt:        start,
			ReservedUntil:     end,
			Status:            model.StatusPending,
			PaymentStatus:     model.PaymentUnpaid,
			HoursUsed:         model.HoursBetween(start, end),
			RecurringSeriesID: &seriesID,
			InstanceDate:      date,
			Notes:             s.Notes,
		}

		conflicts, err := g.finder.FindBufferedConflicts(ctx, start, end, g.cfg.Buffer, 0)
		if err != nil {
			return err
		}

		if !conflicts.Empty() {
			r.Status = model.StatusCancelled
			r.CancellationReason = model.ConflictCancellationReason
			g.logger.Info().
				Int64("series_id", s.ID).
				Str("date", date).
				Int("conflicts", conflicts.Count()).
				Msg("Conflicting date recorded as placeholder")
		} else if g.pricer != nil && s.Owner.Kind == model.OwnerUser {
			cost, err := g.pricer.CalculateCost(ctx, s.Owner.ID, start, end)
			if err != nil {
				return err
			}
			r.FreeHoursUsed = cost.FreeHoursUsed
			r.CostCents = cost.CostCents
			if cost.IsFree() {
				r.PaymentStatus = model.PaymentPaid
			}
		}

		if err := g.store.CreateReservation(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// GenerateFutureInstancesForAllSeries expands every active, unexpired
// series in turn. A failing series is recorded and does not stop the rest.
func (g *Generator) GenerateFutureInstancesForAllSeries(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	series, err := g.store.ListActiveSeries(ctx, g.today())
	if err != nil {
		return result, fmt.Errorf("list active series: %w", err)
	}

	for i := range series {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s := &series[i]
		if !s.IsActive() || s.EndedBefore(g.today()) {
			continue
		}

		result.SeriesProcessed++
		created, err := g.GenerateInstances(ctx, s.ID)
		for _, r := range created {
			if r.Status == model.StatusCancelled {
				result.Placeholders++
			} else {
				result.Created++
			}
		}
		if err != nil {
			g.logger.Error().Err(err).Int64("series_id", s.ID).Msg("Series generation failed")
			result.Failures = append(result.Failures, SeriesFailure{SeriesID: s.ID, Error: err.Error()})
		}
	}

	g.logger.Info().
		Int("series", result.SeriesProcessed).
		Int("created", result.Created).
		Int("placeholders", result.Placeholders).
		Int("failed", len(result.Failures)).
		Msg("Batch generation finished")
	return result, nil
}

// CancelSeries cancels a series and all of its future live instances
// atomically. Cancelling twice is a no-op.
func (g *Generator) CancelSeries(ctx context.Context, seriesID int64, reason string) (int64, error) {
	var cancelled int64
	alreadyCancelled := false
	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		s, err := g.store.GetSeries(ctx, seriesID)
		if err != nil {
			return err
		}
		if !s.IsActive() {
			alreadyCancelled = true
			return nil
		}
		if err := g.store.SetSeriesStatus(ctx, seriesID, model.SeriesCancelled); err != nil {
			return err
		}
		cancelled, err = g.store.CancelFutureSeriesInstances(ctx, seriesID, g.now(), reason)
		return err
	})
	if err != nil {
		return 0, err
	}

	if alreadyCancelled {
		g.logger.Info().Int64("series_id", seriesID).Msg("Series already cancelled")
		return 0, nil
	}

	g.logger.Info().Int64("series_id", seriesID).Int64("instances", cancelled).Str("reason", reason).Msg("Series cancelled")
	g.bus.PublishJSON(events.SeriesCancelled, map[string]any{"series_id": seriesID, "instances": cancelled})
	return cancelled, nil
}
