package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"practicespace/internal/eventsync"
	"practicespace/internal/export"
	"practicespace/internal/metrics"
	"practicespace/internal/model"
)

// SeriesRequest is the body of POST /api/series. Dates are YYYY-MM-DD.
type SeriesRequest struct {
	Owner           model.Owner     `json:"owner"`
	Rule            string          `json:"recurrence_rule"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	SeriesStartDate string          `json:"series_start_date"`
	SeriesEndDate   string          `json:"series_end_date,omitempty"`
	MaxAdvanceDays  int             `json:"max_advance_days,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	// Generate expands the series right away.
	Generate bool `json:"generate,omitempty"`
}

// SeriesResponse returns a series and any instances generated with it.
type SeriesResponse struct {
	Series    *model.RecurringSeries `json:"series,omitempty"`
	Instances []model.Reservation    `json:"instances"`
}

// EventBlockRequest is the body of PUT /api/events/{id}/block.
type EventBlockRequest struct {
	Title           string          `json:"title,omitempty"`
	StartDatetime   time.Time       `json:"start_datetime"`
	EndDatetime     *time.Time      `json:"end_datetime,omitempty"`
	SetupMinutes    *int            `json:"setup_minutes,omitempty"`
	TeardownMinutes *int            `json:"teardown_minutes,omitempty"`
	Force           *model.Override `json:"force,omitempty"`
}

func (req EventBlockRequest) event(id int64) *model.Event {
	return &model.Event{ID: id, Title: req.Title, StartDatetime: req.StartDatetime, EndDatetime: req.EndDatetime}
}

// PatternValidationRequest is the body of POST /api/events/validate-pattern.
type PatternValidationRequest struct {
	Rule            string          `json:"recurrence_rule"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	SetupMinutes    *int            `json:"setup_minutes,omitempty"`
	TeardownMinutes *int            `json:"teardown_minutes,omitempty"`
}

// PatternValidationResponse lists the dates with conflicts.
type PatternValidationResponse struct {
	Dates []eventsync.DateReport `json:"dates"`
}

// ClosureRequest is the body of POST /api/closures.
type ClosureRequest struct {
	ActorID  int64             `json:"actor_id"`
	StartsAt time.Time         `json:"starts_at"`
	EndsAt   time.Time         `json:"ends_at"`
	Type     model.ClosureType `json:"type,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// ClosureResponse returns a new closure and the bookings it covers.
type ClosureResponse struct {
	Closure  *model.SpaceClosure `json:"closure"`
	Affected model.ConflictSet   `json:"affected"`
}

func (s *HTTPServer) parseDate(field, v string) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, v, s.svc.Location())
	if err != nil {
		return time.Time{}, model.Invalid(field, "expected YYYY-MM-DD")
	}
	return d, nil
}

// handleCreateSeries stores a weekly series.
// POST /api/series
func (s *HTTPServer) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("series_create")
	var req SeriesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	start, err := s.parseDate("series_start_date", req.SeriesStartDate)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	series := &model.RecurringSeries{
		Owner:           req.Owner,
		Rule:            req.Rule,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		SeriesStartDate: start,
		MaxAdvanceDays:  req.MaxAdvanceDays,
		Notes:           req.Notes,
	}
	if req.SeriesEndDate != "" {
		end, err := s.parseDate("series_end_date", req.SeriesEndDate)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		series.SeriesEndDate = &end
	}

	ctx := r.Context()
	if err := s.svc.Series.CreateSeries(ctx, series); err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := SeriesResponse{Series: series, Instances: []model.Reservation{}}
	if req.Generate {
		created, err := s.svc.Series.GenerateInstances(ctx, series.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp.Instances = append(resp.Instances, created...)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleGenerateSeries expands one series.
// POST /api/series/{id}/generate
func (s *HTTPServer) handleGenerateSeries(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("series_generate")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	created, err := s.svc.Series.GenerateInstances(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SeriesResponse{Instances: append([]model.Reservation{}, created...)})
}

// handleGenerateAll runs the batch generator.
// POST /api/series/generate
func (s *HTTPServer) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("series_generate_all")
	result, err := s.svc.Series.GenerateFutureInstancesForAllSeries(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelSeries cancels a series and its future instances.
// POST /api/series/{id}/cancel
func (s *HTTPServer) handleCancelSeries(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("series_cancel")
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
	n, err := s.svc.Series.CancelSeries(r.Context(), id, req.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"series_id": id, "cancelled_instances": n})
}

// handleSyncEventBlock writes the event's space block. Unforced conflicts
// answer 409 with the result.
// PUT /api/events/{id}/block
func (s *HTTPServer) handleSyncEventBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("event_block_sync")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var req EventBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.svc.Events.SyncEventBlock(r.Context(), req.event(id), eventsync.Options{
		SetupMinutes:    req.SetupMinutes,
		TeardownMinutes: req.TeardownMinutes,
		Force:           req.Force,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// handleRemoveEventBlock frees the space held by a cancelled event.
// DELETE /api/events/{id}/block
func (s *HTTPServer) handleRemoveEventBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("event_block_remove")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.svc.Events.RemoveEventBlock(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClassify splits an event's conflicts into event and setup conflicts.
// POST /api/events/{id}/classify
func (s *HTTPServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("event_classify")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var req EventBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	c, err := s.svc.Events.Classify(r.Context(), req.event(id), req.SetupMinutes, req.TeardownMinutes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleValidatePattern checks a weekly event pattern date by date.
// POST /api/events/validate-pattern
func (s *HTTPServer) handleValidatePattern(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("event_validate_pattern")
	var req PatternValidationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	from, err := s.parseDate("from", req.From)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	to, err := s.parseDate("to", req.To)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	reports, err := s.svc.Events.ValidateRecurringPattern(r.Context(), eventsync.PatternRequest{
		Rule:            req.Rule,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		From:            from,
		To:              to,
		SetupMinutes:    req.SetupMinutes,
		TeardownMinutes: req.TeardownMinutes,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if reports == nil {
		reports = []eventsync.DateReport{}
	}
	writeJSON(w, http.StatusOK, PatternValidationResponse{Dates: reports})
}

// handleListClosures lists closures in a range.
// GET /api/closures?from=&to=
func (s *HTTPServer) handleListClosures(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("closures_list")
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
	list, err := s.svc.Closures.List(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []model.SpaceClosure{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.SpaceClosure{"closures": list})
}

// handleCreateClosure shuts the space for a range.
// POST /api/closures
func (s *HTTPServer) handleCreateClosure(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("closures_create")
	var req ClosureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	c := &model.SpaceClosure{StartsAt: req.StartsAt, EndsAt: req.EndsAt, Type: req.Type, Reason: req.Reason}
	affected, err := s.svc.Closures.Create(r.Context(), req.ActorID, c)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ClosureResponse{Closure: c, Affected: affected})
}

// handleDeleteClosure reopens the space.
// DELETE /api/closures/{id}?actor_id=
func (s *HTTPServer) handleDeleteClosure(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("closures_delete")
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	actorID, err := queryID(r, "actor_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.svc.Closures.Delete(r.Context(), actorID, id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportSchedule downloads the schedule of a date range, both ends inclusive.
// GET /api/export/schedule?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_schedule")
	from, err := s.queryDate(r, "from")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	to, err := s.queryDate(r, "to")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Export.WriteSchedule(r.Context(), from, to.AddDate(0, 0, 1), &buf); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
