package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"freightsched/internal/metrics"
	"freightsched/internal/model"
	"freightsched/internal/orders"
	"freightsched/internal/sched"
	"freightsched/internal/schedule"
	"freightsched/internal/store"
)

// SchedulesHandler handles POST/GET /v1/schedules. POST accepts the plain
// text flight schedule format as the request body.
func (s *Server) SchedulesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanDispatch() {
			writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Read failed", err.Error(), r.URL.Path)
			return
		}
		sc, err := schedule.ParseWithCapacity(string(body), s.Capacity)
		if err != nil {
			status, title, outcome := scheduleProblem(err)
			metrics.ScheduleLoads.WithLabelValues(outcome).Inc()
			writeProblem(w, status, title, err.Error(), r.URL.Path)
			return
		}
		metrics.ScheduleLoads.WithLabelValues("ok").Inc()
		rows := flightRows(sc)
		id, err := s.Store.SaveSchedule(r.Context(), p.Tenant, r.URL.Query().Get("name"), rows)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save schedule failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"scheduleId": id, "flights": len(rows), "days": countDays(rows)})
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		items, err := s.Store.ListSchedules(r.Context(), tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List schedules failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ScheduleByIDHandler handles GET /v1/schedules/{id}/flights.
func (s *Server) ScheduleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/schedules/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) != 2 || parts[1] != "flights" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	rows, err := s.Store.GetScheduleFlights(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Schedule not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "flights": rows})
}

// OrdersHandler handles POST /v1/orders. The body is a JSON object whose key
// order is the scheduling priority order, so it is decoded as a token stream
// rather than into a map.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanDispatch() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	book, err := orders.Load(r.Body)
	if err != nil {
		if errors.Is(err, orders.ErrNoInput) {
			writeProblem(w, http.StatusBadRequest, "Empty order input", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid order input", err.Error(), r.URL.Path)
		return
	}
	rows := make([]model.OrderRow, 0, book.Len())
	for _, o := range book.All() {
		rows = append(rows, model.OrderRow{ID: o.ID, Origin: o.Origin, Destination: o.Destination})
	}
	id, err := s.Store.CreateOrderBatch(r.Context(), p.Tenant, rows)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create batch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batchId": id, "orders": len(rows)})
}

// OrderBatchHandler handles GET /v1/orders/{batchId}.
func (s *Server) OrderBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	rows, err := s.Store.GetOrderBatch(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Batch not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batchId": id, "orders": rows})
}

// AssignHandler handles POST /v1/assign. It runs one greedy scheduling pass
// over a stored schedule and order batch; the resulting report is cached in
// memory only.
func (s *Server) AssignHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanDispatch() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.ScheduleID == "" || req.BatchID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid assign request", "scheduleId and batchId required", r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}

	frs, err := s.Store.GetScheduleFlights(r.Context(), req.TenantID, req.ScheduleID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Schedule not found", err.Error(), r.URL.Path)
		return
	}
	orderRows, err := s.Store.GetOrderBatch(r.Context(), req.TenantID, req.BatchID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Batch not found", err.Error(), r.URL.Path)
		return
	}

	fs := make([]schedule.Flight, 0, len(frs))
	for _, fr := range frs {
		fs = append(fs, schedule.Flight{Number: fr.Number, Departure: fr.Departure, Destination: fr.Destination, Day: fr.Day, Capacity: fr.Capacity})
	}
	sc := schedule.FromFlights(fs)
	book := orders.NewBook()
	for _, or := range orderRows {
		if err := book.Add(&orders.Order{ID: or.ID, Origin: or.Origin, Destination: or.Destination}); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load batch failed", err.Error(), r.URL.Path)
			return
		}
	}

	start := time.Now()
	runner := sched.New(sc, book)
	stats := runner.Schedule()
	outcomes := runner.Report()
	metrics.AssignRuns.Inc()
	metrics.AssignDuration.Observe(time.Since(start).Seconds())
	metrics.OrderOutcomes.WithLabelValues("assigned").Add(float64(stats.Assigned))
	metrics.OrderOutcomes.WithLabelValues("unassigned").Add(float64(stats.Unassigned))

	report := RunReport{
		RunID:      uuid.New().String(),
		TenantID:   req.TenantID,
		ScheduleID: req.ScheduleID,
		BatchID:    req.BatchID,
		StartedAt:  start.UTC(),
		Stats:      stats,
		Outcomes:   outcomes,
	}
	s.Runs.Put(report)

	for _, o := range outcomes {
		typ := "order.unassigned"
		if o.Scheduled {
			typ = "order.assigned"
		}
		s.Broker.Publish(report.RunID, RunEvent{Type: typ, Data: outcomeData(report.RunID, o)})
	}
	s.Broker.Publish(report.RunID, RunEvent{Type: "run.completed", Data: map[string]any{
		"runId": report.RunID, "assigned": stats.Assigned, "unassigned": stats.Unassigned,
	}})
	s.Pub.Emit(r.Context(), req.TenantID, "run.completed", map[string]any{
		"runId":      report.RunID,
		"scheduleId": req.ScheduleID,
		"batchId":    req.BatchID,
		"assigned":   stats.Assigned,
		"unassigned": stats.Unassigned,
	})

	writeJSON(w, http.StatusOK, report)
}

// RunByIDHandler handles GET /v1/runs/{id} and /v1/runs/{id}/events/stream.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 && parts[1] == "events" && len(parts) > 2 && parts[2] == "stream" {
		s.streamRunEvents(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	report, ok := s.Runs.Get(tenant, id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// streamRunEvents serves SSE for a run. Cached outcomes are replayed first,
// then live broker events until the client goes away.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	if report, ok := s.Runs.Get(tenant, id); ok {
		for _, o := range report.Outcomes {
			typ := "order.unassigned"
			if o.Scheduled {
				typ = "order.assigned"
			}
			writeSSE(w, typ, outcomeData(id, o))
		}
		writeSSE(w, "run.completed", map[string]any{
			"runId": id, "assigned": report.Stats.Assigned, "unassigned": report.Stats.Unassigned,
		})
		flusher.Flush()
	}
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			writeSSE(w, "heartbeat", map[string]any{"runId": id, "ts": time.Now().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		items, err := s.Store.ListSubscriptions(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using the Postgres store
	if pg, ok := s.Store.(interface{ Ping(ctx context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

func writeSSE(w io.Writer, event string, data map[string]any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", string(b))
}

func outcomeData(runID string, o sched.Outcome) map[string]any {
	d := map[string]any{"runId": runID, "orderId": o.OrderID, "scheduled": o.Scheduled}
	if o.Scheduled {
		d["flightNumber"] = o.FlightNumber
		d["departure"] = o.Departure
		d["destination"] = o.Destination
		d["day"] = o.Day
	}
	return d
}

func countDays(rows []model.FlightRow) int {
	days := map[int]struct{}{}
	for _, f := range rows {
		days[f.Day] = struct{}{}
	}
	return len(days)
}

func flightRows(sc *schedule.Schedule) []model.FlightRow {
	rows := make([]model.FlightRow, 0, sc.Len())
	for _, f := range sc.Flights() {
		rows = append(rows, model.FlightRow{Number: f.Number, Departure: f.Departure, Destination: f.Destination, Day: f.Day, Capacity: f.Capacity})
	}
	return rows
}

func scheduleProblem(err error) (status int, title, outcome string) {
	switch {
	case errors.Is(err, schedule.ErrNoInput):
		return http.StatusBadRequest, "Empty schedule input", "empty"
	case errors.Is(err, schedule.ErrMissingDayContext):
		return http.StatusBadRequest, "Missing day context", "missing_day"
	default:
		return http.StatusBadRequest, "Malformed schedule input", "malformed"
	}
}
