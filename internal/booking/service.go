package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"practicespace/internal/events"
	"practicespace/internal/metrics"
	"practicespace/internal/model"
	"practicespace/internal/pricing"
)

// Store persists reservations; WithTx carries one write transaction in ctx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	ListReservations(ctx context.Context, start, end time.Time) ([]model.Reservation, error)
}

// ConflictFinder checks a window against committed intervals, keeping
// buffer clear around other reservations and event blocks.
type ConflictFinder interface {
	FindBufferedConflicts(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID int64) (model.ConflictSet, error)
}

// CostCalculator prices an interval for a user.
type CostCalculator interface {
	CalculateCost(ctx context.Context, userID int64, start, end time.Time) (pricing.Cost, error)
}

// Authorizer gates conflict overrides and payment waivers.
type Authorizer interface {
	Authorize(ctx context.Context, actorID int64, action string) error
}

// Hours supplies the venue opening window.
type Hours interface {
	OperatingHours(date time.Time) (open, closeAt model.TimeOfDay, ok bool)
	Location() *time.Location
}

type Config struct {
	Buffer            time.Duration
	MinDuration       time.Duration
	MaxDuration       time.Duration
	AutoConfirmWithin time.Duration
	MaxAdvance        time.Duration
	AllowMultiDay     bool
}

// CreateRequest describes a new rehearsal reservation.
type CreateRequest struct {
	UserID   int64           `json:"user_id"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Title    string          `json:"title,omitempty"`
	Notes    string          `json:"notes,omitempty"`
	Override *model.Override `json:"override,omitempty"`
}

// Service drives reservations through their lifecycle.
type Service struct {
	store  Store
	finder ConflictFinder
	pricer CostCalculator
	auth   Authorizer
	hours  Hours
	bus    *events.EventBus
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

func NewService(
	store Store,
	finder ConflictFinder,
	pricer CostCalculator,
	auth Authorizer,
	hours Hours,
	bus *events.EventBus,
	cfg Config,
	logger *zerolog.Logger,
) *Service {
	l := logger.With().Str("component", "booking").Logger()
	return &Service{
		store:  store,
		finder: finder,
		pricer: pricer,
		auth:   auth,
		hours:  hours,
		bus:    bus,
		cfg:    cfg,
		logger: &l,
		now:    time.Now,
	}
}

// GetReservation returns a reservation by ID.
func (s *Service) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// ListReservations returns every reservation touching [from, to).
func (s *Service) ListReservations(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	return s.store.ListReservations(ctx, from, to)
}

func (s *Service) validateInterval(start, end time.Time) error {
	if !end.After(start) {
		return model.Invalid("reserved_until", "must be after reserved_at")
	}
	length := end.Sub(start)
	if s.cfg.MinDuration > 0 && length < s.cfg.MinDuration {
		return model.Invalid("duration", "minimum is %s", s.cfg.MinDuration)
	}
	if s.cfg.MaxDuration > 0 && length > s.cfg.MaxDuration {
		return model.Invalid("duration", "maximum is %s", s.cfg.MaxDuration)
	}

	now := s.now()
	if start.Before(now) {
		return model.Invalid("reserved_at", "cannot book in the past")
	}
	if s.cfg.MaxAdvance > 0 && start.After(now.Add(s.cfg.MaxAdvance)) {
		return model.Invalid("reserved_at", "date is too far in the future")
	}

	if s.hours == nil {
		return nil
	}
	loc := s.hours.Location()
	iv := model.Interval{Start: start, End: end}
	multiDay := !model.SameDay(start, end.Add(-time.Nanosecond), loc)
	if multiDay {
		if !s.cfg.AllowMultiDay {
			return model.Invalid("reserved_until", "reservation must start and end on the same day")
		}
		return nil
	}

	local := start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	open, closeAt, ok := s.hours.OperatingHours(day)
	if !ok {
		return model.Invalid("reserved_at", "the space is closed on %s", day.Format(model.DateLayout))
	}
	if iv.Start.Before(open.On(day)) || iv.End.After(closeAt.On(day)) {
		return model.Invalid("reserved_at", "outside operating hours %s-%s", open, closeAt)
	}
	return nil
}

// authorizeOverride checks a force request before any write.
func (s *Service) authorizeOverride(ctx context.Context, o *model.Override) error {
	if o == nil {
		return nil
	}
	if s.auth == nil {
		return fmt.Errorf("no authorizer configured: %w", model.ErrForbidden)
	}
	return s.auth.Authorize(ctx, o.ActorID, ActionOverride)
}

func (s *Service) initialStatus(start time.Time, recurring bool) model.Status {
	if recurring || start.Sub(s.now()) > s.cfg.AutoConfirmWithin {
		return model.StatusPending
	}
	return model.StatusConfirmed
}

// CreateReservation validates, checks conflicts, prices and stores a
// rehearsal reservation in one write transaction.
func (s *Service) CreateReservation(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	if req.UserID <= 0 {
		return nil, model.Invalid("user_id", "must be positive")
	}
	if err := s.validateInterval(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := s.authorizeOverride(ctx, req.Override); err != nil {
		return nil, err
	}

	var created *model.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		conflicts, err := s.finder.FindBufferedConflicts(ctx, req.Start, req.End, s.cfg.Buffer, 0)
		if err != nil {
			return err
		}
		if !conflicts.Empty() {
			if req.Override == nil {
				metrics.IncConflictRejected("create_reservation")
				return &model.ConflictError{Conflicts: conflicts}
			}
			s.logger.Warn().
				Int64("actor_id", req.Override.ActorID).
				Str("reason", req.Override.Reason).
				Int("conflicts", conflicts.Count()).
				Msg("Conflicts overridden")
		}

		cost, err := s.pricer.CalculateCost(ctx, req.UserID, req.Start, req.End)
		if err != nil {
			return err
		}

		r := &model.Reservation{
			Kind:          model.KindRehearsal,
			Owner:         model.UserOwner(req.UserID),
			ReservedAt:    req.Start,
			ReservedUntil: req.End,
			Status:        s.initialStatus(req.Start, false),
			PaymentStatus: model.PaymentUnpaid,
			HoursUsed:     cost.TotalHours,
			FreeHoursUsed: cost.FreeHoursUsed,
			CostCents:     cost.CostCents,
			Title:         req.Title,
			Notes:         req.Notes,
		}
		if cost.IsFree() {
			r.PaymentStatus = model.PaymentPaid
		}
		if err := s.store.CreateReservation(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("reservation_id", created.ID).
		Int64("user_id", req.UserID).
		Time("start", created.ReservedAt).
		Str("status", string(created.Status)).
		Int64("cost_cents", created.CostCents).
		Msg("Reservation created")
	s.bus.PublishJSON(events.ReservationCreated, created)
	return created, nil
}

// mutate loads a reservation inside a write transaction and lets fn change
// it. fn returns false when nothing needs saving.
func (s *Service) mutate(ctx context.Context, id int64, fn func(ctx context.Context, r *model.Reservation) (bool, error)) (*model.Reservation, bool, error) {
	var (
		out     *model.Reservation
		changed bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.store.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		changed, err = fn(ctx, r)
		if err != nil {
			return err
		}
		if changed {
			if err := s.store.UpdateReservation(ctx, r); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	return out, changed, err
}

func (s *Service) noop(r *model.Reservation, action string) {
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("status", string(r.Status)).
		Str("payment_status", string(r.PaymentStatus)).
		Str("action", action).
		Msg("Reservation already in requested state")
}

// Confirm moves a pending reservation to confirmed.
func (s *Service) Confirm(ctx context.Context, id int64) (*model.Reservation, error) {
	r, changed, err := s.mutate(ctx, id, func(_ context.Context, r *model.Reservation) (bool, error) {
		switch {
		case r.Status == model.StatusConfirmed:
			s.noop(r, ActionConfirm)
			return false, nil
		case !CanTransition(r.Status, model.StatusConfirmed):
			return false, stateError(r, ActionConfirm)
		}
		r.Status = model.StatusConfirmed
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.PublishJSON(events.ReservationConfirmed, r)
	}
	return r, nil
}

// ConfirmPayment records a payment and confirms a pending reservation.
// Repeating it is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, id int64, reference string) (*model.Reservation, error) {
	r, changed, err := s.mutate(ctx, id, func(_ context.Context, r *model.Reservation) (bool, error) {
		if r.PaymentStatus == model.PaymentPaid || r.PaymentStatus == model.PaymentComped {
			s.noop(r, ActionPay)
			return false, nil
		}
		if IsTerminal(r.Status) || !CanTransitionPayment(r.PaymentStatus, model.PaymentPaid) {
			return false, stateError(r, ActionPay)
		}
		r.PaymentStatus = model.PaymentPaid
		r.PaymentReference = reference
		if r.Status == model.StatusPending {
			r.Status = model.StatusConfirmed
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info().Int64("reservation_id", r.ID).Str("reference", reference).Msg("Payment recorded")
		s.bus.PublishJSON(events.ReservationPaid, r)
	}
	return r, nil
}

// Comp waives payment; actorID must be a manager.
func (s *Service) Comp(ctx context.Context, id, actorID int64) (*model.Reservation, error) {
	if s.auth == nil {
		return nil, fmt.Errorf("no authorizer configured: %w", model.ErrForbidden)
	}
	if err := s.auth.Authorize(ctx, actorID, ActionComp); err != nil {
		return nil, err
	}

	r, changed, err := s.mutate(ctx, id, func(_ context.Context, r *model.Reservation) (bool, error) {
		if r.PaymentStatus == model.PaymentComped {
			s.noop(r, ActionComp)
			return false, nil
		}
		if IsTerminal(r.Status) || !CanTransitionPayment(r.PaymentStatus, model.PaymentComped) {
			return false, stateError(r, ActionComp)
		}
		r.PaymentStatus = model.PaymentComped
		r.PaymentReference = fmt.Sprintf("comp:%d", actorID)
		if r.Status == model.StatusPending {
			r.Status = model.StatusConfirmed
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.PublishJSON(events.ReservationPaid, r)
	}
	return r, nil
}

// Refund marks a paid or comped reservation refunded.
func (s *Service) Refund(ctx context.Context, id int64) (*model.Reservation, error) {
	r, changed, err := s.mutate(ctx, id, func(_ context.Context, r *model.Reservation) (bool, error) {
		if r.PaymentStatus == model.PaymentRefunded {
			s.noop(r, ActionRefund)
			return false, nil
		}
		if !CanTransitionPayment(r.PaymentStatus, model.PaymentRefunded) {
			return false, stateError(r, ActionRefund)
		}
		r.PaymentStatus = model.PaymentRefunded
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.PublishJSON(events.ReservationRefunded, r)
	}
	return r, nil
}

// CancelReservation cancels a reservation. Its free hours stop counting
// against the owner's allowance. Cancelling twice is a no-op.
func (s *Service) CancelReservation(ctx context.Context, id int64, reason string) (*model.Reservation, error) {
	r, changed, err := s.mutate(ctx, id, func(_ context.Context, r *model.Reservation) (bool, error) {
		if IsTerminal(r.Status) {
			s.noop(r, ActionCancel)
			return false, nil
		}
		r.Status = model.StatusCancelled
		r.CancellationReason = reason
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info().
			Int64("reservation_id", r.ID).
			Str("reason", reason).
			Str("free_hours_restored", r.FreeHoursUsed.String()).
			Msg("Reservation cancelled")
		s.bus.PublishJSON(events.ReservationCancelled, r)
	}
	return r, nil
}

// MovedPayload is published with events.ReservationMoved.
type MovedPayload struct {
	*model.Reservation
	Previous PreviousWindow `json:"previous"`
}

// PreviousWindow is the interval a rescheduled reservation left.
type PreviousWindow struct {
	ReservedAt    time.Time `json:"reserved_at"`
	ReservedUntil time.Time `json:"reserved_until"`
}

// Reschedule moves a live rehearsal to [start, end), ignoring its own
// current interval, and prices it again.
func (s *Service) Reschedule(ctx context.Context, id int64, start, end time.Time) (*model.Reservation, error) {
	if err := s.validateInterval(start, end); err != nil {
		return nil, err
	}

	var previous PreviousWindow
	r, _, err := s.mutate(ctx, id, func(ctx context.Context, r *model.Reservation) (bool, error) {
		if IsTerminal(r.Status) || r.IsEventBlock() || r.PaymentStatus == model.PaymentRefunded {
			return false, stateError(r, ActionReschedule)
		}
		previous = PreviousWindow{ReservedAt: r.ReservedAt, ReservedUntil: r.ReservedUntil}

		conflicts, err := s.finder.FindBufferedConflicts(ctx, start, end, s.cfg.Buffer, r.ID)
		if err != nil {
			return false, err
		}
		if !conflicts.Empty() {
			metrics.IncConflictRejected("reschedule")
			return false, &model.ConflictError{Conflicts: conflicts}
		}

		// Release this row's free hours so the new price sees the full balance.
		r.FreeHoursUsed = decimal.Zero
		if err := s.store.UpdateReservation(ctx, r); err != nil {
			return false, err
		}
		cost, err := s.pricer.CalculateCost(ctx, r.Owner.ID, start, end)
		if err != nil {
			return false, err
		}

		if r.PaymentStatus == model.PaymentPaid && cost.CostCents > r.CostCents {
			r.PaymentStatus = model.PaymentUnpaid
		}
		if r.PaymentStatus == model.PaymentUnpaid && cost.IsFree() {
			r.PaymentStatus = model.PaymentPaid
		}
		r.ReservedAt = start
		r.ReservedUntil = end
		r.HoursUsed = cost.TotalHours
		r.FreeHoursUsed = cost.FreeHoursUsed
		r.CostCents = cost.CostCents
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reservation_id", r.ID).Time("start", start).Time("end", end).Msg("Reservation rescheduled")
	s.bus.PublishJSON(events.ReservationMoved, MovedPayload{Reservation: r, Previous: previous})
	return r, nil
}
