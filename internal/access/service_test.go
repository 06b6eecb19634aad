package access

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"practicespace/internal/model"
)

type mockManagers struct {
	mock.Mock
}

func (m *mockManagers) IsManager(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func TestAuthorize(t *testing.T) {
	svc := NewService(NewStaticManagers([]int64{1, 2}), zerolog.Nop())

	assert.NoError(t, svc.Authorize(context.Background(), 1, "force"))

	err := svc.Authorize(context.Background(), 3, "force")
	assert.ErrorIs(t, err, model.ErrForbidden)

	ok, err := svc.IsManager(context.Background(), 2)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorize_RepositoryError(t *testing.T) {
	managers := &mockManagers{}
	managers.On("IsManager", mock.Anything, int64(5)).Return(false, errors.New("down"))
	svc := NewService(managers, zerolog.Nop())

	err := svc.Authorize(context.Background(), 5, "comp")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrForbidden))
	managers.AssertExpectations(t)
}
