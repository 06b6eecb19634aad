package conflict

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/model"
)

// Store is the read side of the schedule the scanner needs.
type Store interface {
	ActiveReservationsOverlapping(ctx context.Context, start, end time.Time, excludeID int64) ([]model.Reservation, error)
	ClosuresOverlapping(ctx context.Context, start, end time.Time) ([]model.SpaceClosure, error)
}

// Scanner finds every commitment intersecting a time window.
type Scanner struct {
	store  Store
	logger *zerolog.Logger
}

func NewScanner(store Store, logger *zerolog.Logger) *Scanner {
	l := logger.With().Str("component", "conflict").Logger()
	return &Scanner{store: store, logger: &l}
}

// FindConflicts returns the non-cancelled reservations, event blocks and
// closures overlapping [start, end). excludeID 0 excludes nothing. Run it
// inside the caller's write transaction when the result guards a write.
func (s *Scanner) FindConflicts(ctx context.Context, start, end time.Time, excludeID int64) (model.ConflictSet, error) {
	return s.FindBufferedConflicts(ctx, start, end, 0, excludeID)
}

// FindBufferedConflicts is FindConflicts with buffer kept clear between the
// window and other reservations or event blocks. Closures are matched
// against the bare window.
func (s *Scanner) FindBufferedConflicts(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID int64) (model.ConflictSet, error) {
	var set model.ConflictSet
	if !end.After(start) {
		return set, model.Invalid("window", "end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if buffer < 0 {
		buffer = 0
	}

	reservations, err := s.store.ActiveReservationsOverlapping(ctx, start.Add(-buffer), end.Add(buffer), excludeID)
	if err != nil {
		return set, err
	}
	for _, r := range reservations {
		if r.IsEventBlock() {
			set.EventBlocks = append(set.EventBlocks, r)
		} else {
			set.Reservations = append(set.Reservations, r)
		}
	}

	set.Closures, err = s.store.ClosuresOverlapping(ctx, start, end)
	if err != nil {
		return set, err
	}

	if !set.Empty() {
		s.logger.Debug().
			Time("start", start).
			Time("end", end).
			Dur("buffer", buffer).
			Int("reservations", len(set.Reservations)).
			Int("event_blocks", len(set.EventBlocks)).
			Int("closures", len(set.Closures)).
			Msg("Conflicts found")
	}
	return set, nil
}
