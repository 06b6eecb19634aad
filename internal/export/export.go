// Package export writes the schedule and raw tables to Excel workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/model"
)

// Source reads what the workbooks contain.
type Source interface {
	ListReservations(ctx context.Context, start, end time.Time) ([]model.Reservation, error)
	ClosuresOverlapping(ctx context.Context, start, end time.Time) ([]model.SpaceClosure, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

var (
	scheduleColumns = []string{
		"ID", "Date", "Start", "End", "Kind", "Owner", "Title", "Status", "Payment",
		"Hours", "Free hours", "Cost", "Series", "Cancellation reason",
	}
	closureColumns = []string{"ID", "Starts", "Ends", "Type", "Reason"}
)

// Exporter builds spreadsheets of the space's calendar.
type Exporter struct {
	source Source
	loc    func() *time.Location
	logger *zerolog.Logger
}

func NewExporter(source Source, loc func() *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = func() *time.Location { return time.UTC }
	}
	l := logger.With().Str("component", "export").Logger()
	return &Exporter{source: source, loc: loc, logger: &l}
}

// Filename returns a workbook name for the range, like schedule_2026-03-01_2026-03-31.xlsx.
func Filename(from, to time.Time) string {
	return fmt.Sprintf("schedule_%s_%s.xlsx", from.Format(model.DateLayout), to.Format(model.DateLayout))
}

// WriteSchedule writes every reservation, event block and closure touching
// [from, to) to w, times in venue local time. Cancelled rows are included.
func (e *Exporter) WriteSchedule(ctx context.Context, from, to time.Time, w io.Writer) error {
	if !to.After(from) {
		return model.Invalid("to", "must be after from")
	}
	reservations, err := e.source.ListReservations(ctx, from, to)
	if err != nil {
		return err
	}
	closures, err := e.source.ClosuresOverlapping(ctx, from, to)
	if err != nil {
		return err
	}

	sw := newSheetWriter()
	defer func() { _ = sw.close() }()
	loc := e.loc()

	if err := sw.addSheet("Schedule"); err != nil {
		return err
	}
	if err := sw.writeHeader(scheduleColumns); err != nil {
		return err
	}
	for i := range reservations {
		if err := sw.writeRow(reservationRow(&reservations[i], loc)); err != nil {
			return err
		}
	}

	if err := sw.addSheet("Closures"); err != nil {
		return err
	}
	if err := sw.writeHeader(closureColumns); err != nil {
		return err
	}
	for _, c := range closures {
		row := []any{
			c.ID,
			c.StartsAt.In(loc).Format("2006-01-02 15:04"),
			c.EndsAt.In(loc).Format("2006-01-02 15:04"),
			string(c.Type),
			c.Reason,
		}
		if err := sw.writeRow(row); err != nil {
			return err
		}
	}

	if err := sw.save(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().
		Int("reservations", len(reservations)).
		Int("closures", len(closures)).
		Str("file", Filename(from, to)).
		Msg("Schedule exported")
	return nil
}

func reservationRow(r *model.Reservation, loc *time.Location) []any {
	start, end := r.ReservedAt.In(loc), r.ReservedUntil.In(loc)
	var series any
	if r.RecurringSeriesID != nil {
		series = *r.RecurringSeriesID
	}
	hours, _ := r.HoursUsed.Float64()
	free, _ := r.FreeHoursUsed.Float64()
	return []any{
		r.ID,
		start.Format(model.DateLayout),
		start.Format("15:04"),
		end.Format("15:04"),
		string(r.Kind),
		r.Owner.String(),
		r.Title,
		string(r.Status),
		string(r.PaymentStatus),
		hours,
		free,
		float64(r.CostCents) / 100,
		series,
		r.CancellationReason,
	}
}

// WriteTables dumps the raw tables, one sheet each.
func (e *Exporter) WriteTables(ctx context.Context, tables []string, w io.Writer) error {
	sw := newSheetWriter()
	defer func() { _ = sw.close() }()

	for _, table := range tables {
		rows, columns, err := e.source.GetTableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if err := sw.addSheet(table); err != nil {
			return err
		}
		if err := sw.writeHeader(columns); err != nil {
			return err
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = cellValue(row[col])
			}
			if err := sw.writeRow(values); err != nil {
				return err
			}
		}
	}

	if err := sw.save(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().Strs("tables", tables).Msg("Tables exported")
	return nil
}

// cellValue turns driver values into something excelize renders as text.
func cellValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
