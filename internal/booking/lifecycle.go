// Package booking implements the reservation lifecycle.
package booking

import "practicespace/internal/model"

// Action names used in state errors and authorization checks.
const (
	ActionConfirm    = "confirm"
	ActionPay        = "pay"
	ActionComp       = "comp"
	ActionRefund     = "refund"
	ActionCancel     = "cancel"
	ActionReschedule = "reschedule"
	ActionOverride   = "override conflicts"
)

// statusTransitions lists the allowed moves of Reservation.Status.
var statusTransitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCancelled},
	model.StatusCancelled: {},
}

// paymentTransitions lists the allowed moves of Reservation.PaymentStatus.
var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentUnpaid:   {model.PaymentPaid, model.PaymentComped},
	model.PaymentPaid:     {model.PaymentRefunded},
	model.PaymentComped:   {model.PaymentRefunded},
	model.PaymentRefunded: {},
}

// CanTransition checks if a status transition is allowed.
func CanTransition(from, to model.Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment checks if a payment transition is allowed.
func CanTransitionPayment(from, to model.PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transition exists.
func IsTerminal(s model.Status) bool {
	return len(statusTransitions[s]) == 0
}

func stateError(r *model.Reservation, action string) error {
	state := string(r.Status)
	if !IsTerminal(r.Status) {
		state = string(r.Status) + "/" + string(r.PaymentStatus)
	}
	return &model.StateError{ID: r.ID, State: state, Action: action}
}
