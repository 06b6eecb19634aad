// Package access decides who may override conflicts or waive payments.
package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"practicespace/internal/model"
)

// ManagerRepository reports whether a user is a venue manager.
type ManagerRepository interface {
	IsManager(ctx context.Context, userID int64) (bool, error)
}

// StaticManagers is a manager set loaded from configuration.
type StaticManagers map[int64]struct{}

func NewStaticManagers(ids []int64) StaticManagers {
	m := make(StaticManagers, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func (m StaticManagers) IsManager(_ context.Context, userID int64) (bool, error) {
	_, ok := m[userID]
	return ok, nil
}

// Service implements the scheduler's Authorizer.
type Service struct {
	managers ManagerRepository
	logger   zerolog.Logger
}

// NewService creates a new access control service.
func NewService(managers ManagerRepository, logger zerolog.Logger) *Service {
	return &Service{
		managers: managers,
		logger:   logger.With().Str("component", "access").Logger(),
	}
}

// IsManager checks if a user is a manager.
func (s *Service) IsManager(ctx context.Context, userID int64) (bool, error) {
	return s.managers.IsManager(ctx, userID)
}

// Authorize returns nil when actorID may perform action, model.ErrForbidden otherwise.
func (s *Service) Authorize(ctx context.Context, actorID int64, action string) error {
	ok, err := s.managers.IsManager(ctx, actorID)
	if err != nil {
		return fmt.Errorf("checking manager status: %w", err)
	}
	if !ok {
		s.logger.Warn().Int64("actor_id", actorID).Str("action", action).Msg("action denied")
		return fmt.Errorf("user %d may not %s: %w", actorID, action, model.ErrForbidden)
	}

	s.logger.Info().Int64("actor_id", actorID).Str("action", action).Msg("action authorized")
	return nil
}
