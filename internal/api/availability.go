package api

import (
	"net/http"
	"time"

	"practicespace/internal/metrics"
	"practicespace/internal/model"
	"practicespace/internal/pricing"
	"practicespace/internal/slots"
)

// TimesResponse lists bookable times of a date.
type TimesResponse struct {
	Date  string            `json:"date"`
	Times []model.TimeOfDay `json:"times"`
}

// SlotsResponse is the step grid of a date.
type SlotsResponse struct {
	Date  string           `json:"date"`
	Slots []slots.SlotInfo `json:"slots"`
	Free  []Window         `json:"free"`
}

// Window is a free run of consecutive slots.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CostRequest is the body of POST /api/cost.
type CostRequest struct {
	UserID int64     `json:"user_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// CostResponse mirrors pricing.Cost with decimals rendered as strings.
type CostResponse struct {
	TotalHours    string `json:"total_hours"`
	FreeHoursUsed string `json:"free_hours_used"`
	PaidHours     string `json:"paid_hours"`
	CostCents     int64  `json:"cost_cents"`
}

func (s *HTTPServer) slotQuery(r *http.Request) (slots.Query, error) {
	var q slots.Query
	var err error
	if q.ExcludeReservationID, err = queryID(r, "exclude_id"); err != nil {
		return q, err
	}
	q.Selected, err = queryTimeOfDay(r, "selected")
	return q, err
}

// handleStartTimes returns the start times of a date.
// GET /api/availability/starts?date=YYYY-MM-DD&exclude_id=&selected=HH:MM
func (s *HTTPServer) handleStartTimes(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_starts")
	date, err := s.queryDate(r, "date")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	q, err := s.slotQuery(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	times, err := s.svc.Slots.AvailableStartTimes(r.Context(), date, q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if times == nil {
		times = []model.TimeOfDay{}
	}
	writeJSON(w, http.StatusOK, TimesResponse{Date: date.Format(model.DateLayout), Times: times})
}

// handleEndTimes returns the end times for a start.
// GET /api/availability/ends?date=YYYY-MM-DD&start=HH:MM&exclude_id=&selected=HH:MM
func (s *HTTPServer) handleEndTimes(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_ends")
	date, err := s.queryDate(r, "date")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	start, err := queryTimeOfDay(r, "start")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if start == nil {
		s.writeDomainError(w, model.Invalid("start", "is required"))
		return
	}
	q, err := s.slotQuery(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	times, err := s.svc.Slots.ValidEndTimes(r.Context(), date, *start, q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if times == nil {
		times = []model.TimeOfDay{}
	}
	writeJSON(w, http.StatusOK, TimesResponse{Date: date.Format(model.DateLayout), Times: times})
}

// handleSlots returns the availability grid of a date.
// GET /api/availability/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_slots")
	date, err := s.queryDate(r, "date")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	grid, err := s.svc.Slots.Slots(r.Context(), date, slots.Query{})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := SlotsResponse{Date: date.Format(model.DateLayout), Slots: slots.ToSlotInfo(grid), Free: []Window{}}
	for _, run := range slots.FreeRuns(grid) {
		resp.Free = append(resp.Free, Window{Start: run.Start, End: run.End})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConflicts lists every commitment overlapping a window.
// GET /api/conflicts?start=RFC3339&end=RFC3339&exclude_id=
func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("conflicts")
	start, err := s.queryTime(r, "start")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	end, err := s.queryTime(r, "end")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	exclude, err := queryID(r, "exclude_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	set, err := s.svc.Conflicts.FindConflicts(r.Context(), start, end, exclude)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// handleCost prices a prospective reservation.
// POST /api/cost
func (s *HTTPServer) handleCost(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cost")
	var req CostRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	cost, err := s.svc.Pricing.CalculateCost(r.Context(), req.UserID, req.Start, req.End)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, costResponse(cost))
}

func costResponse(c pricing.Cost) CostResponse {
	return CostResponse{
		TotalHours:    c.TotalHours.String(),
		FreeHoursUsed: c.FreeHoursUsed.String(),
		PaidHours:     c.PaidHours.String(),
		CostCents:     c.CostCents,
	}
}
