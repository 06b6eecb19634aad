// Package cache keeps computed availability in Redis and drops it when the
// schedule changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"practicespace/internal/events"
	"practicespace/internal/model"
)

const keyPrefix = "practicespace:starts:"

// StartTimes caches the unfiltered start options of a venue-local day.
// Cache failures are logged and treated as misses.
type StartTimes struct {
	rdb    *redis.Client
	ttl    time.Duration
	loc    func() *time.Location
	logger *zerolog.Logger
}

// NewStartTimes creates a cache. loc reports the venue zone used to map
// changed intervals to day keys.
func NewStartTimes(rdb *redis.Client, ttl time.Duration, loc func() *time.Location, logger *zerolog.Logger) *StartTimes {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if loc == nil {
		loc = func() *time.Location { return time.UTC }
	}
	l := logger.With().Str("component", "cache").Logger()
	return &StartTimes{rdb: rdb, ttl: ttl, loc: loc, logger: &l}
}

func dayKey(day string) string {
	return keyPrefix + day
}

func (c *StartTimes) GetStartTimes(ctx context.Context, day string) ([]model.TimeOfDay, bool) {
	val, err := c.rdb.Get(ctx, dayKey(day)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("day", day).Msg("Cache read failed")
		}
		return nil, false
	}
	var times []model.TimeOfDay
	if err := json.Unmarshal(val, &times); err != nil {
		c.logger.Warn().Err(err).Str("day", day).Msg("Cache entry corrupt")
		return nil, false
	}
	return times, true
}

func (c *StartTimes) SetStartTimes(ctx context.Context, day string, times []model.TimeOfDay) {
	if times == nil {
		times = []model.TimeOfDay{}
	}
	data, err := json.Marshal(times)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, dayKey(day), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("day", day).Msg("Cache write failed")
	}
}

// InvalidateRange drops every day touched by [start, end).
func (c *StartTimes) InvalidateRange(ctx context.Context, start, end time.Time) error {
	loc := c.loc()
	first := model.StartOfDay(start.In(loc))
	last := end.In(loc)
	var keys []string
	for d := first; d.Before(last); d = d.AddDate(0, 0, 1) {
		keys = append(keys, dayKey(d.Format(model.DateLayout)))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate %d days: %w", len(keys), err)
	}
	return nil
}

// Flush drops every cached day.
func (c *StartTimes) Flush(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

// span matches the interval fields of reservation and closure payloads.
type span struct {
	ReservedAt    time.Time `json:"reserved_at"`
	ReservedUntil time.Time `json:"reserved_until"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

func (s span) interval() (model.Interval, bool) {
	switch {
	case !s.ReservedAt.IsZero() && s.ReservedUntil.After(s.ReservedAt):
		return model.Interval{Start: s.ReservedAt, End: s.ReservedUntil}, true
	case !s.StartsAt.IsZero() && s.EndsAt.After(s.StartsAt):
		return model.Interval{Start: s.StartsAt, End: s.EndsAt}, true
	}
	return model.Interval{}, false
}

// Subscribe invalidates cached days on every schedule change. Payloads that
// carry no interval, like series batches, flush the whole cache. A moved
// reservation also carries its previous interval.
func (c *StartTimes) Subscribe(bus *events.EventBus) {
	bus.Subscribe(c.handle, events.AllTypes...)
}

func (c *StartTimes) handle(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var payload struct {
		span
		Previous *span `json:"previous,omitempty"`
	}
	if err := e.Decode(&payload); err != nil {
		return c.Flush(ctx)
	}
	iv, ok := payload.interval()
	if !ok {
		c.logger.Debug().Str("type", e.Type).Msg("Flushing availability cache")
		return c.Flush(ctx)
	}
	if err := c.InvalidateRange(ctx, iv.Start, iv.End); err != nil {
		return err
	}
	if payload.Previous != nil {
		if prev, ok := payload.Previous.interval(); ok {
			return c.InvalidateRange(ctx, prev.Start, prev.End)
		}
	}
	return nil
}
