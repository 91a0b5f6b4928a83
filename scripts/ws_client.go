// Package main runs a demo WebSocket client for scheduling run events: it
// uploads a schedule, imports an order batch, triggers a run, and streams
// the run's events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const scheduleText = `Day 1:
Flight 1: Montreal(YUL) to Toronto(YYZ)
Flight 2: Montreal(YUL) to Calgary(YYC)
`

const ordersJSON = `{"ord_001":{"destination":"YYZ"},"ord_002":{"destination":"YYC"},"ord_003":{"destination":"XXX"}}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var sched struct {
		ID string `json:"scheduleId"`
	}
	postAs(base+"/v1/schedules", "text/plain", strings.NewReader(scheduleText), &sched)
	log.Printf("Schedule ID: %s", sched.ID)

	var batch struct {
		BatchID string `json:"batchId"`
	}
	postAs(base+"/v1/orders", "application/json", strings.NewReader(ordersJSON), &batch)
	log.Printf("Batch ID: %s", batch.BatchID)

	assignBody, _ := json.Marshal(map[string]string{"scheduleId": sched.ID, "batchId": batch.BatchID})
	var report struct {
		RunID string `json:"runId"`
	}
	postAs(base+"/v1/assign", "application/json", bytes.NewReader(assignBody), &report)
	log.Printf("Run ID: %s", report.RunID)

	// Connect WS and subscribe to the run's events
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"runId": report.RunID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func postAs(url, contentType string, body io.Reader, out any) {
	req, _ := http.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}
