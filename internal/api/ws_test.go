package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"freightsched/internal/sched"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.RunWSHandler))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunWSSubscribeReplaysReport(t *testing.T) {
	s := newTestServer(t)
	s.Runs.Put(RunReport{
		RunID:    "run-ws-1",
		TenantID: "t_demo",
		Stats:    sched.Stats{Assigned: 1, Unassigned: 1},
		Outcomes: []sched.Outcome{
			{OrderID: "a", Scheduled: true, FlightNumber: 1, Departure: "YUL", Destination: "YYZ", Day: 1},
			{OrderID: "b", Destination: "XXX"},
		},
	})

	c := dialWS(t, s)
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %v %+v", err, ack)
	}
	pl, _ := json.Marshal(wsSubscribe{RunID: "run-ws-1"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		t.Fatal(err)
	}

	// While the replay streams, hammer the broker so live fanout writes
	// overlap with it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Broker.Publish("run-ws-1", RunEvent{Type: "order.assigned", Data: map[string]any{"orderId": "x"}})
		}
	}()

	types := map[string]int{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			break
		}
		if m.Type != "next" {
			continue
		}
		var body struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(m.Payload, &body)
		types[body.Type]++
		if types["run.completed"] > 0 && types["order.unassigned"] > 0 {
			break
		}
	}
	wg.Wait()
	if types["order.assigned"] == 0 || types["order.unassigned"] == 0 || types["run.completed"] == 0 {
		t.Fatalf("replay incomplete: %v", types)
	}
}

func TestRunWSSubscribeRequiresRunID(t *testing.T) {
	s := newTestServer(t)
	c := dialWS(t, s)
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %v %+v", err, ack)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	sawError := false
	for i := 0; i < 2; i++ {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			break
		}
		if m.Type == "error" {
			sawError = true
		}
		if m.Type == "complete" {
			break
		}
	}
	if !sawError {
		t.Fatal("expected error message for missing runId")
	}
}
