package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"practicespace/internal/config"
	"practicespace/internal/model"
)

const closureColumns = `id, starts_at, ends_at, closure_type, reason, created_at`

func collectClosures(rows *sql.Rows) ([]model.SpaceClosure, error) {
	defer rows.Close()
	var out []model.SpaceClosure
	for rows.Next() {
		var c model.SpaceClosure
		if err := rows.Scan(&c.ID, &c.StartsAt, &c.EndsAt, &c.Type, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateClosure inserts c and fills its ID.
func (db *DB) CreateClosure(ctx context.Context, c *model.SpaceClosure) error {
	if !c.EndsAt.After(c.StartsAt) {
		return model.Invalid("ends_at", "must be after starts_at")
	}
	if c.Type == "" {
		c.Type = model.ClosureOther
	}
	now := dbTime(time.Now())
	res, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO space_closures (starts_at, ends_at, closure_type, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		dbTime(c.StartsAt), dbTime(c.EndsAt), c.Type, c.Reason, now,
	)
	if err != nil {
		return fmt.Errorf("insert closure: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

// DeleteClosure removes a closure.
func (db *DB) DeleteClosure(ctx context.Context, id int64) error {
	res, err := db.conn(ctx).ExecContext(ctx, `DELETE FROM space_closures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete closure %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "closure", ID: id}
	}
	return nil
}

// ClosuresOverlapping returns closures intersecting [start, end), ordered by start.
func (db *DB) ClosuresOverlapping(ctx context.Context, start, end time.Time) ([]model.SpaceClosure, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+closureColumns+`
		FROM space_closures
		WHERE starts_at < ? AND ends_at > ?
		ORDER BY starts_at, id`,
		dbTime(end), dbTime(start),
	)
	if err != nil {
		return nil, fmt.Errorf("query closures: %w", err)
	}
	return collectClosures(rows)
}

// SyncClosuresFromVenue turns configured holidays into whole-day holiday
// closures in the venue timezone. Existing holiday closures are kept.
func (db *DB) SyncClosuresFromVenue(ctx context.Context, cfg *config.VenueConfig) (int, error) {
	if cfg == nil {
		return 0, fmt.Errorf("venue config is nil")
	}

	loc := cfg.Location()
	created := 0
	for _, h := range cfg.Holidays {
		day, err := time.ParseInLocation(model.DateLayout, h.Date, loc)
		if err != nil {
			return created, fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		start := day
		end := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)

		res, err := db.conn(ctx).ExecContext(ctx, `
			INSERT INTO space_closures (starts_at, ends_at, closure_type, reason, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(starts_at) WHERE closure_type = 'holiday' DO NOTHING`,
			dbTime(start), dbTime(end), model.ClosureHoliday, h.Name, dbTime(time.Now()),
		)
		if err != nil {
			return created, fmt.Errorf("sync holiday %s: %w", h.Date, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	db.logger.Info().Int("created", created).Int("holidays", len(cfg.Holidays)).Msg("Venue closures synced")
	return created, nil
}
