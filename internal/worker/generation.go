// Package worker runs background schedule maintenance.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/metrics"
	"practicespace/internal/recurring"
)

// BatchGenerator expands every active series.
type BatchGenerator interface {
	GenerateFutureInstancesForAllSeries(ctx context.Context) (recurring.BatchResult, error)
}

// GenerationWorker keeps recurring series expanded up to their horizon.
// It runs once on start and then every interval.
type GenerationWorker struct {
	generator BatchGenerator
	interval  time.Duration
	logger    *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	lastRun time.Time
}

func NewGenerationWorker(generator BatchGenerator, interval time.Duration, logger *zerolog.Logger) *GenerationWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "generation_worker").Logger()
	return &GenerationWorker{
		generator: generator,
		interval:  interval,
		logger:    &l,
		stopCh:    make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (w *GenerationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("Generation worker started")
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Generation worker stopped by context")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("Generation worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the worker.
func (w *GenerationWorker) Stop() {
	w.mu.Lock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
	w.mu.Unlock()
}

// RunOnce performs one batch generation and records its metrics.
func (w *GenerationWorker) RunOnce(ctx context.Context) recurring.BatchResult {
	start := time.Now()
	result, err := w.generator.GenerateFutureInstancesForAllSeries(ctx)
	duration := time.Since(start)

	w.mu.Lock()
	w.lastRun = start
	w.mu.Unlock()

	if err != nil {
		w.logger.Error().Err(err).Msg("Batch generation failed")
	}
	metrics.ObserveGeneration(duration, result.Created, result.Placeholders, len(result.Failures))
	return result
}

// LastRun returns when the last batch started, zero if none has.
func (w *GenerationWorker) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}
