package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"practicespace/internal/model"
)

const reservationColumns = `id, kind, owner_kind, owner_id, reserved_at, reserved_until, status,
	payment_status, hours_used, free_hours_used, cost_cents, recurring_series_id,
	instance_date, title, notes, cancellation_reason, payment_reference, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		r            model.Reservation
		seriesID     sql.NullInt64
		instanceDate sql.NullString
	)
	err := s.Scan(
		&r.ID, &r.Kind, &r.Owner.Kind, &r.Owner.ID, &r.ReservedAt, &r.ReservedUntil, &r.Status,
		&r.PaymentStatus, &r.HoursUsed, &r.FreeHoursUsed, &r.CostCents, &seriesID,
		&instanceDate, &r.Title, &r.Notes, &r.CancellationReason, &r.PaymentReference,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seriesID.Valid {
		id := seriesID.Int64
		r.RecurringSeriesID = &id
	}
	if instanceDate.Valid {
		r.InstanceDate = instanceDate.String
	}
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateReservation inserts r and fills its ID and timestamps.
func (db *DB) CreateReservation(ctx context.Context, r *model.Reservation) error {
	now := dbTime(time.Now())
	if r.Kind == "" {
		r.Kind = model.KindRehearsal
	}
	res, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservations (
			kind, owner_kind, owner_id, reserved_at, reserved_until, status, payment_status,
			hours_used, free_hours_used, cost_cents, recurring_series_id, instance_date,
			title, notes, cancellation_reason, payment_reference, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Kind, r.Owner.Kind, r.Owner.ID, dbTime(r.ReservedAt), dbTime(r.ReservedUntil), r.Status, r.PaymentStatus,
		r.HoursUsed.String(), r.FreeHoursUsed.String(), r.CostCents, nullInt64(r.RecurringSeriesID), nullString(r.InstanceDate),
		r.Title, r.Notes, r.CancellationReason, r.PaymentReference, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetReservation returns a reservation or a NotFoundError.
func (db *DB) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "reservation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return r, nil
}

// UpdateReservation persists the mutable fields of r.
func (db *DB) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	now := dbTime(time.Now())
	res, err := db.conn(ctx).ExecContext(ctx, `
		UPDATE reservations SET
			reserved_at = ?, reserved_until = ?, status = ?, payment_status = ?,
			hours_used = ?, free_hours_used = ?, cost_cents = ?, title = ?, notes = ?,
			cancellation_reason = ?, payment_reference = ?, updated_at = ?
		WHERE id = ?`,
		dbTime(r.ReservedAt), dbTime(r.ReservedUntil), r.Status, r.PaymentStatus,
		r.HoursUsed.String(), r.FreeHoursUsed.String(), r.CostCents, r.Title, r.Notes,
		r.CancellationReason, r.PaymentReference, now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: "reservation", ID: r.ID}
	}
	r.UpdatedAt = now
	return nil
}

// ActiveReservationsOverlapping returns non-cancelled reservations and event
// blocks intersecting [start, end), ordered by start. excludeID 0 excludes nothing.
func (db *DB) ActiveReservationsOverlapping(ctx context.Context, start, end time.Time, excludeID int64) ([]model.Reservation, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status != ? AND reserved_at < ? AND reserved_until > ? AND id != ?
		ORDER BY reserved_at, id`,
		model.StatusCancelled, dbTime(end), dbTime(start), excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query overlapping reservations: %w", err)
	}
	return collectReservations(rows)
}

// ListReservations returns every reservation touching [start, end), cancelled included.
func (db *DB) ListReservations(ctx context.Context, start, end time.Time) ([]model.Reservation, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE reserved_at < ? AND reserved_until > ?
		ORDER BY reserved_at, id`,
		dbTime(end), dbTime(start),
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return collectReservations(rows)
}

// ListOwnerReservations returns reservations of owner starting in [from, to).
func (db *DB) ListOwnerReservations(ctx context.Context, owner model.Owner, from, to time.Time) ([]model.Reservation, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE owner_kind = ? AND owner_id = ? AND reserved_at >= ? AND reserved_at < ?
		ORDER BY reserved_at, id`,
		owner.Kind, owner.ID, dbTime(from), dbTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list owner reservations: %w", err)
	}
	return collectReservations(rows)
}

// FreeHoursUsed sums free_hours_used over the user's non-cancelled
// reservations starting in [from, to).
func (db *DB) FreeHoursUsed(ctx context.Context, userID int64, from, to time.Time) (decimal.Decimal, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT free_hours_used
		FROM reservations
		WHERE owner_kind = ? AND owner_id = ? AND status != ? AND reserved_at >= ? AND reserved_at < ?`,
		model.OwnerUser, userID, model.StatusCancelled, dbTime(from), dbTime(to),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query free hours: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var used decimal.Decimal
		if err := rows.Scan(&used); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(used)
	}
	return total, rows.Err()
}

// GetEventBlock returns the block row of an event, cancelled or not.
func (db *DB) GetEventBlock(ctx context.Context, eventID int64) (*model.Reservation, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE kind = ? AND owner_id = ?`,
		model.KindEvent, eventID,
	)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "event block", ID: eventID}
	}
	if err != nil {
		return nil, fmt.Errorf("get event block %d: %w", eventID, err)
	}
	return r, nil
}

// UpsertEventBlock inserts or rewrites the single block row of an event and
// reactivates it.
func (db *DB) UpsertEventBlock(ctx context.Context, b *model.Reservation) error {
	now := dbTime(time.Now())
	_, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservations (
			kind, owner_kind, owner_id, reserved_at, reserved_until, status, payment_status,
			title, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) WHERE kind = 'event' DO UPDATE SET
			reserved_at = excluded.reserved_at,
			reserved_until = excluded.reserved_until,
			status = excluded.status,
			title = excluded.title,
			notes = excluded.notes,
			cancellation_reason = '',
			updated_at = excluded.updated_at`,
		model.KindEvent, model.OwnerEvent, b.Owner.ID, dbTime(b.ReservedAt), dbTime(b.ReservedUntil),
		model.StatusConfirmed, model.PaymentComped, b.Title, b.Notes, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert event block %d: %w", b.Owner.ID, err)
	}

	stored, err := db.GetEventBlock(ctx, b.Owner.ID)
	if err != nil {
		return err
	}
	*b = *stored
	return nil
}

// SeriesInstanceExists reports whether any row, cancelled placeholders
// included, exists for the series on date.
func (db *DB) SeriesInstanceExists(ctx context.Context, seriesID int64, date string) (bool, error) {
	var count int
	err := db.conn(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE recurring_series_id = ? AND instance_date = ?",
		seriesID, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check series instance: %w", err)
	}
	return count > 0, nil
}

// ListSeriesInstances returns all rows of a series ordered by instance date.
func (db *DB) ListSeriesInstances(ctx context.Context, seriesID int64) ([]model.Reservation, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE recurring_series_id = ?
		ORDER BY instance_date, id`,
		seriesID,
	)
	if err != nil {
		return nil, fmt.Errorf("list series instances: %w", err)
	}
	return collectReservations(rows)
}

// CancelFutureSeriesInstances cancels non-cancelled instances of a series
// starting at or after from and returns how many were changed.
func (db *DB) CancelFutureSeriesInstances(ctx context.Context, seriesID int64, from time.Time, reason string) (int64, error) {
	res, err := db.conn(ctx).ExecContext(ctx, `
		UPDATE reservations SET status = ?, cancellation_reason = ?, updated_at = ?
		WHERE recurring_series_id = ? AND status != ? AND reserved_at >= ?`,
		model.StatusCancelled, reason, dbTime(time.Now()), seriesID, model.StatusCancelled, dbTime(from),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel series instances: %w", err)
	}
	return res.RowsAffected()
}
