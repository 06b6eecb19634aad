package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind tags who holds a reservation.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerEvent OwnerKind = "event"
)

// Owner is the holder of a reservation: a user or an event.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

// UserOwner returns an owner for a member.
func UserOwner(id int64) Owner { return Owner{Kind: OwnerUser, ID: id} }

// EventOwner returns an owner for an event space block.
func EventOwner(id int64) Owner { return Owner{Kind: OwnerEvent, ID: id} }

func (o Owner) String() string { return fmt.Sprintf("%s:%d", o.Kind, o.ID) }

// Valid reports whether the owner carries a known kind and a positive id.
func (o Owner) Valid() bool {
	return (o.Kind == OwnerUser || o.Kind == OwnerEvent) && o.ID > 0
}

// ReservationKind separates member rehearsals from event space blocks.
type ReservationKind string

const (
	KindRehearsal ReservationKind = "rehearsal"
	KindEvent     ReservationKind = "event"
)

// Status is the booking state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks money independently of Status.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentComped   PaymentStatus = "comped"
	PaymentRefunded PaymentStatus = "refunded"
)

// ConflictCancellationReason marks placeholders created for conflicting
// recurring dates.
const ConflictCancellationReason = "Scheduling conflict"

// Reservation is an exclusive claim on the space for [ReservedAt, ReservedUntil).
// Event space blocks are reservations of KindEvent owned by an event.
type Reservation struct {
	ID                 int64           `json:"id"`
	Kind               ReservationKind `json:"kind"`
	Owner              Owner           `json:"owner"`
	ReservedAt         time.Time       `json:"reserved_at"`
	ReservedUntil      time.Time       `json:"reserved_until"`
	Status             Status          `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	HoursUsed          decimal.Decimal `json:"hours_used"`
	FreeHoursUsed      decimal.Decimal `json:"free_hours_used"`
	CostCents          int64           `json:"cost_cents"`
	RecurringSeriesID  *int64          `json:"recurring_series_id,omitempty"`
	InstanceDate       string          `json:"instance_date,omitempty"`
	Title              string          `json:"title,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Interval returns the reserved range.
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.ReservedAt, End: r.ReservedUntil}
}

// Duration returns the reserved length.
func (r *Reservation) Duration() time.Duration {
	return r.ReservedUntil.Sub(r.ReservedAt)
}

// IsActive reports whether the reservation still holds the space.
func (r *Reservation) IsActive() bool {
	return r.Status != StatusCancelled
}

// IsEventBlock reports whether the reservation is an event space block.
func (r *Reservation) IsEventBlock() bool {
	return r.Kind == KindEvent
}

// IsRecurring reports whether the reservation belongs to a series.
func (r *Reservation) IsRecurring() bool {
	return r.RecurringSeriesID != nil
}

// HoursBetween returns the exact length of [start, end) in hours.
func HoursBetween(start, end time.Time) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(end.Sub(start) / time.Minute))
	return minutes.Div(decimal.NewFromInt(60))
}

// Override is an explicit, authorization-checked request to bypass conflicts.
type Override struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}
