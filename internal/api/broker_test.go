package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "run1"
	ch := b.Subscribe(rid)

	evt := RunEvent{Type: "order.assigned", Data: map[string]any{"orderId": "ord_1"}}
	b.Publish(rid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["orderId"].(string) != "ord_1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("run2")
	for i := 0; i < 20; i++ {
		b.Publish("run2", RunEvent{Type: "order.assigned"})
	}
	// buffered at 8; publishing past that must not block
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			if n != cap(ch) {
				t.Fatalf("expected %d buffered events, got %d", cap(ch), n)
			}
			return
		}
	}
}

func TestBrokerIsolatesRuns(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("runA")
	b.Publish("runB", RunEvent{Type: "run.completed"})
	select {
	case evt := <-a:
		t.Fatalf("unexpected cross-run event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
