package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"practicespace/internal/model"
)

const seriesColumns = `id, owner_kind, owner_id, recurrence_rule, start_time, end_time,
	series_start_date, series_end_date, max_advance_days, status, notes, created_at, updated_at`

func scanSeries(s rowScanner) (*model.RecurringSeries, error) {
	var (
		rs        model.RecurringSeries
		startTime string
		endTime   string
		startDate string
		endDate   sql.NullString
	)
	err := s.Scan(
		&rs.ID, &rs.Owner.Kind, &rs.Owner.ID, &rs.Rule, &startTime, &endTime,
		&startDate, &endDate, &rs.MaxAdvanceDays, &rs.Status, &rs.Notes, &rs.CreatedAt, &rs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rs.StartTime, err = model.ParseTimeOfDay(startTime); err != nil {
		return nil, fmt.Errorf("series %d start_time: %w", rs.ID, err)
	}
	if rs.EndTime, err = model.ParseTimeOfDay(endTime); err != nil {
		return nil, fmt.Errorf("series %d end_time: %w", rs.ID, err)
	}
	if rs.SeriesStartDate, err = time.Parse(model.DateLayout, startDate); err != nil {
		return nil, fmt.Errorf("series %d start date: %w", rs.ID, err)
	}
	if endDate.Valid {
		d, err := time.Parse(model.DateLayout, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("series %d end date: %w", rs.ID, err)
		}
		rs.SeriesEndDate = &d
	}
	return &rs, nil
}

func dateOrNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(model.DateLayout), Valid: true}
}

// CreateSeries inserts s and fills its ID and timestamps.
func (db *DB) CreateSeries(ctx context.Context, s *model.RecurringSeries) error {
	now := dbTime(time.Now())
	if s.Status == "" {
		s.Status = model.SeriesActive
	}
	res, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO recurring_series (
			owner_kind, owner_id, recurrence_rule, start_time, end_time, series_start_date,
			series_end_date, max_advance_days, status, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Owner.Kind, s.Owner.ID, s.Rule, s.StartTime.String(), s.EndTime.String(),
		s.SeriesStartDate.Format(model.DateLayout), dateOrNull(s.SeriesEndDate), s.MaxAdvanceDays,
		s.Status, s.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert series: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetSeries returns a series or a NotFoundError.
func (db *DB) GetSeries(ctx context.Context, id int64) (*model.RecurringSeries, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM recurring_series WHERE id = ?`, id)
	s, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "recurring series", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get series %d: %w", id, err)
	}
	return s, nil
}

// ListActiveSeries returns active series whose end date is not before day.
func (db *DB) ListActiveSeries(ctx context.Context, day time.Time) ([]model.RecurringSeries, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+seriesColumns+`
		FROM recurring_series
		WHERE status = ? AND (series_end_date IS NULL OR series_end_date >= ?)
		ORDER BY id`,
		model.SeriesActive, day.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list active series: %w", err)
	}
	defer rows.Close()

	var out []model.RecurringSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetSeriesStatus updates the status of a series.
func (db *DB) SetSeriesStatus(ctx context.Context, id int64, status model.SeriesStatus) error {
	res, err := db.conn(ctx).ExecContext(ctx,
		`UPDATE recurring_series SET status = ?, updated_at = ? WHERE id = ?`,
		status, dbTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update series %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: "recurring series", ID: id}
	}
	return nil
}
