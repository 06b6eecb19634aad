package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicespace/internal/recurring"
)

type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *countingGenerator) GenerateFutureInstancesForAllSeries(context.Context) (recurring.BatchResult, error) {
	g.calls.Add(1)
	return recurring.BatchResult{SeriesProcessed: 1, Created: 2}, g.err
}

func TestGenerationWorker_RunsOnStartAndOnTick(t *testing.T) {
	logger := zerolog.New(io.Discard)
	gen := &countingGenerator{}
	w := NewGenerationWorker(gen, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return gen.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.LastRun().IsZero())
}

func TestGenerationWorker_Stop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	gen := &countingGenerator{}
	w := NewGenerationWorker(gen, time.Hour, &logger)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestGenerationWorker_RunOnceError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	gen := &countingGenerator{err: errors.New("database is locked")}
	w := NewGenerationWorker(gen, time.Hour, &logger)

	result := w.RunOnce(context.Background())
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, int32(1), gen.calls.Load())
}
