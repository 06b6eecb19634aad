// Package closures manages the ranges during which the space is shut.
package closures

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/config"
	"practicespace/internal/events"
	"practicespace/internal/model"
)

// ActionManage is the authorization action for creating or deleting closures.
const ActionManage = "manage closures"

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateClosure(ctx context.Context, c *model.SpaceClosure) error
	DeleteClosure(ctx context.Context, id int64) error
	ClosuresOverlapping(ctx context.Context, start, end time.Time) ([]model.SpaceClosure, error)
	SyncClosuresFromVenue(ctx context.Context, cfg *config.VenueConfig) (int, error)
}

type ConflictFinder interface {
	FindConflicts(ctx context.Context, start, end time.Time, excludeID int64) (model.ConflictSet, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, actorID int64, action string) error
}

// Service creates and removes closures. A closure always wins over existing
// bookings; the bookings it covers are returned so staff can contact owners.
type Service struct {
	store  Store
	finder ConflictFinder
	auth   Authorizer
	bus    *events.EventBus
	logger *zerolog.Logger
}

func NewService(store Store, finder ConflictFinder, auth Authorizer, bus *events.EventBus, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "closures").Logger()
	return &Service{store: store, finder: finder, auth: auth, bus: bus, logger: &l}
}

// Create stores c and returns the live reservations and event blocks it covers.
func (s *Service) Create(ctx context.Context, actorID int64, c *model.SpaceClosure) (model.ConflictSet, error) {
	var affected model.ConflictSet
	if err := s.auth.Authorize(ctx, actorID, ActionManage); err != nil {
		return affected, err
	}
	if !c.EndsAt.After(c.StartsAt) {
		return affected, model.Invalid("ends_at", "must be after starts_at")
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		found, err := s.finder.FindConflicts(ctx, c.StartsAt, c.EndsAt, 0)
		if err != nil {
			return err
		}
		affected = model.ConflictSet{Reservations: found.Reservations, EventBlocks: found.EventBlocks}
		return s.store.CreateClosure(ctx, c)
	})
	if err != nil {
		return model.ConflictSet{}, err
	}

	s.logger.Info().
		Int64("closure_id", c.ID).
		Int64("actor_id", actorID).
		Time("starts_at", c.StartsAt).
		Time("ends_at", c.EndsAt).
		Int("affected", affected.Count()).
		Msg("Closure created")
	s.bus.PublishJSON(events.ClosureCreated, c)
	return affected, nil
}

// Delete removes a closure.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.auth.Authorize(ctx, actorID, ActionManage); err != nil {
		return err
	}
	if err := s.store.DeleteClosure(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("closure_id", id).Int64("actor_id", actorID).Msg("Closure deleted")
	s.bus.PublishJSON(events.ClosureDeleted, map[string]int64{"id": id})
	return nil
}

// List returns closures intersecting [from, to).
func (s *Service) List(ctx context.Context, from, to time.Time) ([]model.SpaceClosure, error) {
	if !to.After(from) {
		return nil, model.Invalid("to", "must be after from")
	}
	return s.store.ClosuresOverlapping(ctx, from, to)
}

// VenueChange is the payload of a venue reload event.
type VenueChange struct {
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	HolidayClosures int    `json:"holiday_closures"`
}

// ApplyVenue makes v the live venue config, turns its holidays into closures
// and announces the change so cached availability is dropped. The config is
// swapped even when the holiday sync fails.
func (s *Service) ApplyVenue(ctx context.Context, holder *config.VenueHolder, v *config.VenueConfig) error {
	holder.Set(v)
	created, err := s.store.SyncClosuresFromVenue(ctx, v)
	change := VenueChange{Name: v.Name, Timezone: v.Location().String(), HolidayClosures: created}
	s.bus.PublishJSON(events.VenueReloaded, change)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("venue", v.Name).
		Str("timezone", change.Timezone).
		Int("holiday_closures", created).
		Msg("Venue config applied")
	return nil
}
