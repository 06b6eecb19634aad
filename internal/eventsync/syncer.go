// Package eventsync keeps each event's space block, padded by setup and
// teardown time, in the shared schedule.
package eventsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/events"
	"practicespace/internal/metrics"
	"practicespace/internal/model"
	"practicespace/internal/recurring"
)

// ActionForceSync is the authorization action for writing a block over conflicts.
const ActionForceSync = "force event block"

// Conflict kinds reported by ValidateRecurringPattern.
const (
	KindEventConflict = "event_conflict"
	KindSetupConflict = "setup_conflict"
)

// Store persists event blocks.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventBlock(ctx context.Context, eventID int64) (*model.Reservation, error)
	UpsertEventBlock(ctx context.Context, b *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// ConflictFinder checks a window against committed intervals.
type ConflictFinder interface {
	FindConflicts(ctx context.Context, start, end time.Time, excludeID int64) (model.ConflictSet, error)
	FindBufferedConflicts(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID int64) (model.ConflictSet, error)
}

// Authorizer gates forced writes.
type Authorizer interface {
	Authorize(ctx context.Context, actorID int64, action string) error
}

// Config holds the sync defaults. Buffer is the gap kept between a block and
// neighbouring reservations, the same one booking keeps.
type Config struct {
	DefaultSetup         time.Duration
	DefaultTeardown      time.Duration
	DefaultEventDuration time.Duration
	Buffer               time.Duration
	Location             func() *time.Location
}

// Options override the configured buffers for one sync. Force bypasses
// conflicts once its actor is authorized.
type Options struct {
	SetupMinutes    *int
	TeardownMinutes *int
	Force           *model.Override
}

// Result is the outcome of SyncEventBlock. Conflicts is set whenever the
// scan found something, including forced writes.
type Result struct {
	Success   bool               `json:"success"`
	Written   bool               `json:"written"`
	Conflicts model.ConflictSet  `json:"conflicts"`
	Block     *model.Reservation `json:"block,omitempty"`
}

// Classification splits the conflicts of a padded event window.
type Classification struct {
	EventConflicts model.ConflictSet `json:"event_conflicts"`
	SetupConflicts model.ConflictSet `json:"setup_conflicts"`
}

// HasEventConflicts reports whether the event's own time is taken.
func (c Classification) HasEventConflicts() bool { return !c.EventConflicts.Empty() }

// HasSetupConflicts reports whether only the buffers are taken.
func (c Classification) HasSetupConflicts() bool { return !c.SetupConflicts.Empty() }

// PatternRequest describes a prospective weekly event.
type PatternRequest struct {
	Rule            string          `json:"recurrence_rule"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	SetupMinutes    *int            `json:"setup_minutes,omitempty"`
	TeardownMinutes *int            `json:"teardown_minutes,omitempty"`
}

// DateReport is the conflict report of one pattern date.
type DateReport struct {
	Date      string            `json:"date"`
	Type      string            `json:"type"`
	Conflicts model.ConflictSet `json:"conflicts"`
}

// Syncer reconciles event blocks against the schedule.
type Syncer struct {
	store  Store
	finder ConflictFinder
	auth   Authorizer
	bus    *events.EventBus
	cfg    Config
	logger *zerolog.Logger
}

func NewSyncer(store Store, finder ConflictFinder, auth Authorizer, bus *events.EventBus, cfg Config, logger *zerolog.Logger) *Syncer {
	if cfg.Location == nil {
		cfg.Location = func() *time.Location { return time.UTC }
	}
	if cfg.DefaultEventDuration <= 0 {
		cfg.DefaultEventDuration = 3 * time.Hour
	}
	l := logger.With().Str("component", "eventsync").Logger()
	return &Syncer{store: store, finder: finder, auth: auth, bus: bus, cfg: cfg, logger: &l}
}

func minutesOr(v *int, fallback time.Duration) (time.Duration, error) {
	if v == nil {
		return fallback, nil
	}
	if *v < 0 {
		return 0, model.Invalid("buffer", "minutes must not be negative")
	}
	return time.Duration(*v) * time.Minute, nil
}

func (s *Syncer) buffers(setup, teardown *int) (time.Duration, time.Duration, error) {
	before, err := minutesOr(setup, s.cfg.DefaultSetup)
	if err != nil {
		return 0, 0, err
	}
	after, err := minutesOr(teardown, s.cfg.DefaultTeardown)
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

func (s *Syncer) eventWindow(e *model.Event) (model.Interval, error) {
	if e.ID <= 0 {
		return model.Interval{}, model.Invalid("event_id", "must be positive")
	}
	if e.StartDatetime.IsZero() {
		return model.Interval{}, model.Invalid("start_datetime", "is required")
	}
	iv := model.Interval{Start: e.StartDatetime, End: e.End(s.cfg.DefaultEventDuration)}
	if !iv.Valid() {
		return iv, model.Invalid("end_datetime", "must be after start_datetime")
	}
	return iv, nil
}

// existingBlock returns the event's block row, or nil when it has none.
func (s *Syncer) existingBlock(ctx context.Context, eventID int64) (*model.Reservation, error) {
	b, err := s.store.GetEventBlock(ctx, eventID)
	if model.IsNotFound(err) {
		return nil, nil
	}
	return b, err
}

func sameWindow(b *model.Reservation, iv model.Interval) bool {
	return b.IsActive() &&
		b.ReservedAt.Equal(iv.Start.Truncate(time.Second)) &&
		b.ReservedUntil.Equal(iv.End.Truncate(time.Second))
}

// SyncEventBlock writes the event's padded block unless it is unchanged or
// blocked by conflicts. The check and the write share one transaction.
func (s *Syncer) SyncEventBlock(ctx context.Context, e *model.Event, opts Options) (Result, error) {
	var res Result
	window, err := s.eventWindow(e)
	if err != nil {
		return res, err
	}
	setup, teardown, err := s.buffers(opts.SetupMinutes, opts.TeardownMinutes)
	if err != nil {
		return res, err
	}
	padded := window.Pad(setup, teardown)

	if opts.Force != nil {
		if s.auth == nil {
			return res, fmt.Errorf("no authorizer configured: %w", model.ErrForbidden)
		}
		if err := s.auth.Authorize(ctx, opts.Force.ActorID, ActionForceSync); err != nil {
			return res, err
		}
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.existingBlock(ctx, e.ID)
		if err != nil {
			return err
		}
		if existing != nil && sameWindow(existing, padded) {
			res.Success = true
			res.Block = existing
			return nil
		}

		var excludeID int64
		if existing != nil {
			excludeID = existing.ID
		}
		res.Conflicts, err = s.finder.FindBufferedConflicts(ctx, padded.Start, padded.End, s.cfg.Buffer, excludeID)
		if err != nil {
			return err
		}
		if !res.Conflicts.Empty() {
			if opts.Force == nil {
				metrics.IncConflictRejected("sync_event_block")
				res.Block = existing
				return nil
			}
			s.logger.Warn().
				Int64("event_id", e.ID).
				Int64("actor_id", opts.Force.ActorID).
				Str("reason", opts.Force.Reason).
				Int("conflicts", res.Conflicts.Count()).
				Msg("Event block forced over conflicts")
		}

		block := &model.Reservation{
			Kind:          model.KindEvent,
			Owner:         model.EventOwner(e.ID),
			ReservedAt:    padded.Start,
			ReservedUntil: padded.End,
			Title:         e.Title,
			Notes:         fmt.Sprintf("setup %dm, teardown %dm", int(setup.Minutes()), int(teardown.Minutes())),
		}
		if err := s.store.UpsertEventBlock(ctx, block); err != nil {
			return err
		}
		res.Success = true
		res.Written = true
		res.Block = block
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	switch {
	case res.Written:
		s.logger.Info().
			Int64("event_id", e.ID).
			Time("reserved_at", padded.Start).
			Time("reserved_until", padded.End).
			Msg("Event block synced")
		s.bus.PublishJSON(events.EventBlockSynced, res.Block)
	case res.Success:
		s.logger.Info().Int64("event_id", e.ID).Msg("Event block unchanged")
	default:
		s.logger.Info().Int64("event_id", e.ID).Int("conflicts", res.Conflicts.Count()).Msg("Event block not written: conflicts")
	}
	return res, nil
}

// classify runs the two scans: the unpadded window gives event conflicts and
// whatever only the padded window adds is a setup conflict.
func (s *Syncer) classify(ctx context.Context, window, padded model.Interval, excludeID int64) (Classification, error) {
	var c Classification
	all, err := s.finder.FindConflicts(ctx, padded.Start, padded.End, excludeID)
	if err != nil {
		return c, err
	}
	c.EventConflicts, err = s.finder.FindConflicts(ctx, window.Start, window.End, excludeID)
	if err != nil {
		return c, err
	}
	c.SetupConflicts = all.Minus(c.EventConflicts)
	return c, nil
}

// Classify reports which commitments overlap the event itself and which
// overlap only its setup or teardown margin. The event's own block is ignored.
func (s *Syncer) Classify(ctx context.Context, e *model.Event, setupMinutes, teardownMinutes *int) (Classification, error) {
	window, err := s.eventWindow(e)
	if err != nil {
		return Classification{}, err
	}
	setup, teardown, err := s.buffers(setupMinutes, teardownMinutes)
	if err != nil {
		return Classification{}, err
	}
	existing, err := s.existingBlock(ctx, e.ID)
	if err != nil {
		return Classification{}, err
	}
	var excludeID int64
	if existing != nil {
		excludeID = existing.ID
	}
	return s.classify(ctx, window, window.Pad(setup, teardown), excludeID)
}

// ValidateRecurringPattern checks every date of a weekly pattern and returns
// a report for each date that has conflicts. A date with any event conflict
// is reported as event_conflict with all of its conflicts.
func (s *Syncer) ValidateRecurringPattern(ctx context.Context, req PatternRequest) ([]DateReport, error) {
	rule, err := recurring.ParseRule(req.Rule)
	if err != nil {
		return nil, err
	}
	if req.EndTime <= req.StartTime {
		return nil, model.Invalid("end_time", "must be after start_time")
	}
	if req.From.IsZero() || req.To.Before(req.From) {
		return nil, model.Invalid("to", "must not be before from")
	}
	setup, teardown, err := s.buffers(req.SetupMinutes, req.TeardownMinutes)
	if err != nil {
		return nil, err
	}

	loc := s.cfg.Location()
	var reports []DateReport
	for _, date := range rule.Dates(req.From, req.From, req.To) {
		local := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		window := model.Interval{Start: req.StartTime.On(local), End: req.EndTime.On(local)}

		c, err := s.classify(ctx, window, window.Pad(setup, teardown), 0)
		if err != nil {
			return nil, fmt.Errorf("pattern date %s: %w", date.Format(model.DateLayout), err)
		}
		switch {
		case c.HasEventConflicts():
			all := c.EventConflicts
			all.Reservations = append(all.Reservations, c.SetupConflicts.Reservations...)
			all.EventBlocks = append(all.EventBlocks, c.SetupConflicts.EventBlocks...)
			all.Closures = append(all.Closures, c.SetupConflicts.Closures...)
			reports = append(reports, DateReport{Date: date.Format(model.DateLayout), Type: KindEventConflict, Conflicts: all})
		case c.HasSetupConflicts():
			reports = append(reports, DateReport{Date: date.Format(model.DateLayout), Type: KindSetupConflict, Conflicts: c.SetupConflicts})
		}
	}
	return reports, nil
}

// RemoveEventBlock cancels the block of a cancelled event. Removing a
// missing or already cancelled block is a no-op.
func (s *Syncer) RemoveEventBlock(ctx context.Context, eventID int64) error {
	var removed *model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.existingBlock(ctx, eventID)
		if err != nil || b == nil || !b.IsActive() {
			return err
		}
		b.Status = model.StatusCancelled
		b.CancellationReason = "Event cancelled"
		if err := s.store.UpdateReservation(ctx, b); err != nil {
			return err
		}
		removed = b
		return nil
	})
	if err != nil {
		return err
	}
	if removed == nil {
		s.logger.Info().Int64("event_id", eventID).Msg("No active event block to remove")
		return nil
	}
	s.logger.Info().Int64("event_id", eventID).Int64("reservation_id", removed.ID).Msg("Event block removed")
	s.bus.PublishJSON(events.EventBlockRemoved, removed)
	return nil
}

// IsForbidden reports whether err came from a denied force request.
func IsForbidden(err error) bool {
	return errors.Is(err, model.ErrForbidden)
}
