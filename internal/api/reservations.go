package api

import (
	"net/http"
	"time"

	"practicespace/internal/booking"
	"practicespace/internal/metrics"
	"practicespace/internal/model"
)

// ActionRequest carries the optional fields of reservation actions.
type ActionRequest struct {
	Reason    string    `json:"reason,omitempty"`
	Reference string    `json:"reference,omitempty"`
	ActorID   int64     `json:"actor_id,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
}

// ReservationsResponse is one page of a reservation list.
type ReservationsResponse struct {
	Reservations []model.Reservation `json:"reservations"`
	Page         Page                `json:"page"`
}

// handleListReservations lists reservations and blocks in a range.
// GET /api/reservations?from=&to=&page=&per_page=
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_list")
	from, err := s.queryTime(r, "from")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	to, err := s.queryTime(r, "to")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !to.After(from) {
		s.writeDomainError(w, model.Invalid("to", "must be after from"))
		return
	}
	page, perPage, err := pageParams(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	list, err := s.svc.Bookings.ListReservations(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	items, meta := paginate(list, page, perPage)
	writeJSON(w, http.StatusOK, ReservationsResponse{Reservations: items, Page: meta})
}

// handleCreateReservation books a rehearsal.
// POST /api/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_create")
	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	created, err := s.svc.Bookings.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetReservation returns one reservation.
// GET /api/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_get")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.svc.Bookings.GetReservation(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReservationAction applies a lifecycle action.
// POST /api/reservations/{id}/{confirm|pay|comp|refund|cancel|reschedule}
func (s *HTTPServer) handleReservationAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	metrics.IncHTTP("reservations_action")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var req ActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	ctx := r.Context()
	var res *model.Reservation
	switch action {
	case "confirm":
		res, err = s.svc.Bookings.Confirm(ctx, id)
	case "pay":
		res, err = s.svc.Bookings.ConfirmPayment(ctx, id, req.Reference)
	case "comp":
		res, err = s.svc.Bookings.Comp(ctx, id, req.ActorID)
	case "refund":
		res, err = s.svc.Bookings.Refund(ctx, id)
	case "cancel":
		res, err = s.svc.Bookings.CancelReservation(ctx, id, req.Reason)
	case "reschedule":
		res, err = s.svc.Bookings.Reschedule(ctx, id, req.Start, req.End)
	default:
		writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
