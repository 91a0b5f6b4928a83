package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"freightsched/internal/config"
)

const scheduleText = `Day 1:
Flight 1: Montreal(YUL) to Toronto(YYZ)
Flight 2: Montreal(YUL) to Calgary(YYC)
Flight 3: Vancouver(YVR) to Toronto(YYZ)
Day 2:
Flight 4: Montreal(YUL) to Toronto(YYZ)
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func postText(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	s.SchedulesHandler(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestScheduleUploadAndFlights(t *testing.T) {
	s := newTestServer(t)
	rr := postText(t, s, "/v1/schedules?name=fall", scheduleText)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: got %d body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID      string `json:"scheduleId"`
		Flights int    `json:"flights"`
		Days    int    `json:"days"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Flights != 4 || created.Days != 2 {
		t.Fatalf("flights = %d days = %d, want 4 and 2", created.Flights, created.Days)
	}

	rr = httptest.NewRecorder()
	s.ScheduleByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/schedules/"+created.ID+"/flights", nil))
	if rr.Code != 200 {
		t.Fatalf("flights: got %d", rr.Code)
	}
	var got struct {
		Flights []struct {
			Number      int    `json:"flightNumber"`
			Destination string `json:"destination"`
			Day         int    `json:"day"`
			Capacity    int    `json:"capacity"`
		} `json:"flights"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Flights) != 4 || got.Flights[3].Number != 4 || got.Flights[3].Day != 2 {
		t.Fatalf("unexpected flights: %+v", got.Flights)
	}
	if got.Flights[0].Capacity != 20 {
		t.Fatalf("capacity = %d, want 20", got.Flights[0].Capacity)
	}

	rr = httptest.NewRecorder()
	s.SchedulesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/schedules", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), created.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
}

func TestScheduleUploadProblems(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name  string
		body  string
		title string
	}{
		{"empty", "", "Empty schedule input"},
		{"blank", "\n  \n", "Empty schedule input"},
		{"flight before day", "Flight 1: Montreal(YUL) to Toronto(YYZ)\n", "Missing day context"},
		{"garbage", "Day one:\n", "Malformed schedule input"},
		{"missing codes", "Day 1:\nFlight 1: Montreal to Toronto\n", "Malformed schedule input"},
	}
	for _, tc := range cases {
		rr := postText(t, s, "/v1/schedules", tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d", tc.name, rr.Code)
		}
		var p Problem
		if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if p.Title != tc.title {
			t.Fatalf("%s: title %q, want %q", tc.name, p.Title, tc.title)
		}
	}
}

func TestOrdersImportKeepsPriorityOrder(t *testing.T) {
	s := newTestServer(t)
	body := `{"ord_99":{"destination":"YYZ"},"ord_01":{"destination":"YYC"},"ord_50":{"destination":"YYZ","departure":"YVR"}}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	s.OrdersHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import: got %d body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		BatchID string `json:"batchId"`
		Orders  int    `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Orders != 3 {
		t.Fatalf("orders = %d, want 3", created.Orders)
	}

	rr = httptest.NewRecorder()
	s.OrderBatchHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/"+created.BatchID, nil))
	if rr.Code != 200 {
		t.Fatalf("batch get: %d", rr.Code)
	}
	var got struct {
		Orders []struct {
			ID     string `json:"id"`
			Origin string `json:"origin"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := []string{"ord_99", "ord_01", "ord_50"}
	for i, id := range want {
		if got.Orders[i].ID != id {
			t.Fatalf("row %d = %s, want %s", i, got.Orders[i].ID, id)
		}
	}
	if got.Orders[0].Origin != "YUL" || got.Orders[2].Origin != "YVR" {
		t.Fatalf("origins: %+v", got.Orders)
	}
}

func TestOrdersImportEmptyBody(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OrdersHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader("")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Empty order input") {
		t.Fatalf("body: %s", rr.Body.String())
	}
}

func uploadAndImport(t *testing.T, s *Server, schedText, ordersJSON string) (scheduleID, batchID string) {
	t.Helper()
	rr := postText(t, s, "/v1/schedules", schedText)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	var sc struct {
		ID string `json:"scheduleId"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sc)
	rr = httptest.NewRecorder()
	s.OrdersHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(ordersJSON)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var ba struct {
		BatchID string `json:"batchId"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &ba)
	return sc.ID, ba.BatchID
}

func runAssign(t *testing.T, s *Server, scheduleID, batchID string) RunReport {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"scheduleId": scheduleID, "batchId": batchID})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.AssignHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("assign: %d %s", rr.Code, rr.Body.String())
	}
	var report RunReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	return report
}

func TestAssignSaturatesCapacity(t *testing.T) {
	s := newTestServer(t)
	var sb strings.Builder
	sb.WriteString("{")
	for i := 1; i <= 25; i++ {
		if i > 1 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `"ord_%03d":{"destination":"YYZ"}`, i)
	}
	sb.WriteString("}")
	schedID, batchID := uploadAndImport(t, s, "Day 1:\nFlight 1: Montreal(YUL) to Toronto(YYZ)\n", sb.String())

	report := runAssign(t, s, schedID, batchID)
	if report.Stats.Assigned != 20 || report.Stats.Unassigned != 5 {
		t.Fatalf("stats = %+v", report.Stats)
	}
	if len(report.Outcomes) != 25 {
		t.Fatalf("outcomes = %d", len(report.Outcomes))
	}
	// first 20 by priority win, the rest are left behind
	for i, o := range report.Outcomes {
		want := i < 20
		if o.Scheduled != want {
			t.Fatalf("outcome %d scheduled = %v", i, o.Scheduled)
		}
	}

	// run is retrievable from the cache
	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+report.RunID, nil))
	if rr.Code != 200 {
		t.Fatalf("run get: %d", rr.Code)
	}
}

func TestAssignFirstFitAndRerunIndependence(t *testing.T) {
	s := newTestServer(t)
	schedID, batchID := uploadAndImport(t, s, scheduleText, `{"a":{"destination":"YYZ"},"b":{"destination":"YYC"},"c":{"destination":"XXX"}}`)
	first := runAssign(t, s, schedID, batchID)
	if !first.Outcomes[0].Scheduled || first.Outcomes[0].FlightNumber != 1 {
		t.Fatalf("first fit: %+v", first.Outcomes[0])
	}
	if first.Outcomes[2].Scheduled {
		t.Fatalf("no flight serves XXX: %+v", first.Outcomes[2])
	}
	// re-running the same inputs starts from zero loads
	second := runAssign(t, s, schedID, batchID)
	if second.Stats != first.Stats {
		t.Fatalf("rerun stats differ: %+v vs %+v", first.Stats, second.Stats)
	}
	if second.RunID == first.RunID {
		t.Fatal("run ids must differ")
	}
}

func TestAssignUnknownIDs(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"scheduleId":"nope","batchId":"nope"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assign", bytes.NewReader(body))
	s.AssignHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestAssignForbiddenForCustomerRole(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assign", strings.NewReader(`{"scheduleId":"x","batchId":"y"}`))
	req.Header.Set("X-Role", "customer")
	s.AssignHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestAssignEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	subBody := []byte(`{"url":"https://example.invalid/hook","events":["run.completed"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	req.Header.Set("Content-Type", "application/json")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}

	schedID, batchID := uploadAndImport(t, s, scheduleText, `{"a":{"destination":"YYZ"}}`)
	_ = runAssign(t, s, schedID, batchID)

	due, err := s.Store.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].EventType != "run.completed" {
		t.Fatalf("deliveries: %+v", due)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", strings.NewReader(`{"url":"https://example.invalid/h","events":["run.completed"]}`))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	var sub struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != 204 {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != 404 {
		t.Fatalf("delete again: %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher and
// captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	mu   sync.Mutex
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}
func (r *sseRecorder) snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

func TestRunEventsSSEReplaysReport(t *testing.T) {
	s := newTestServer(t)
	schedID, batchID := uploadAndImport(t, s, scheduleText, `{"a":{"destination":"YYZ"},"b":{"destination":"XXX"}}`)
	report := runAssign(t, s, schedID, batchID)

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/runs/"+report.RunID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.RunByIDHandler(rec, sseReq)
		close(done)
	}()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.snapshot(), []byte("event: run.completed")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := rec.snapshot()
	if !bytes.Contains(got, []byte("event: order.assigned")) {
		t.Fatalf("missing assigned event: %s", got)
	}
	if !bytes.Contains(got, []byte("event: order.unassigned")) {
		t.Fatalf("missing unassigned event: %s", got)
	}
	if !bytes.Contains(got, []byte("event: run.completed")) {
		t.Fatalf("missing completion event: %s", got)
	}
	cancel()
	<-done
}
