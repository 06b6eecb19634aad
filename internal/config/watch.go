package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type fileStamp struct {
	mod  time.Time
	size int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// WatchVenue loads the venue file, hands it to apply, and then polls it every
// interval in the background until ctx is done. A changed file that fails to
// load or validate is logged and the previous config stays in effect.
func WatchVenue(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, apply func(*VenueConfig)) error {
	if path == "" {
		path = "configs/venue.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "venue_watch").Str("path", path).Logger()

	last, err := stampOf(path)
	if err != nil {
		return err
	}
	venue, err := LoadVenueConfig(path)
	if err != nil {
		return err
	}
	if apply != nil {
		apply(venue)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			stamp, err := stampOf(path)
			if err != nil {
				l.Warn().Err(err).Msg("Venue file not readable")
				continue
			}
			if stamp == last {
				continue
			}
			last = stamp
			venue, err := LoadVenueConfig(path)
			if err != nil {
				l.Error().Err(err).Msg("Venue reload rejected, keeping previous config")
				continue
			}
			l.Info().Str("venue", venue.Name).Msg("Venue config reloaded")
			if apply != nil {
				apply(venue)
			}
		}
	}()
	return nil
}
