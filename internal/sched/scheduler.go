// Package sched performs the greedy assignment pass binding orders to
// flights. One pass, first-fit, no backtracking: the outcome is a pure
// function of schedule order, order priority order and flight capacity.
package sched

import (
	"freightsched/internal/orders"
	"freightsched/internal/schedule"
)

// Outcome is the reported result for one order after a pass.
type Outcome struct {
	OrderID      string `json:"orderId"`
	Scheduled    bool   `json:"scheduled"`
	FlightNumber int    `json:"flightNumber,omitempty"`
	Departure    string `json:"departure,omitempty"`
	Destination  string `json:"destination"`
	Day          int    `json:"day,omitempty"`
}

// Stats summarizes one pass.
type Stats struct {
	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
}

// Scheduler borrows a schedule and an order book for the duration of one
// pass and mutates flight loads and order bindings through that borrow. It
// owns neither collection.
type Scheduler struct {
	schedule *schedule.Schedule
	book     *orders.Book
}

func New(s *schedule.Schedule, b *orders.Book) *Scheduler {
	return &Scheduler{schedule: s, book: b}
}

// Schedule walks the orders in priority order and binds each unassigned
// order to the first flight serving its destination with a seat left. An
// order with no available flight stays unassigned, which is a normal
// terminal state. The binding and the load increment happen together so
// no observer of the single-threaded pass sees one without the other.
func (s *Scheduler) Schedule() Stats {
	var st Stats
	for _, o := range s.book.All() {
		if _, ok := o.Scheduled(); ok {
			continue
		}
		f := s.schedule.NextAvailable(o.Destination)
		if f == nil {
			st.Unassigned++
			continue
		}
		if err := o.Assign(f); err != nil {
			// unreachable for unassigned orders; counted rather than bound
			st.Unassigned++
			continue
		}
		f.Load++
		st.Assigned++
	}
	return st
}

// Report projects one outcome per order in priority order. It reads only;
// calling it any number of times yields identical output.
func (s *Scheduler) Report() []Outcome {
	out := make([]Outcome, 0, s.book.Len())
	for _, o := range s.book.All() {
		oc := Outcome{OrderID: o.ID, Destination: o.Destination}
		if f, ok := o.Scheduled(); ok {
			oc.Scheduled = true
			oc.FlightNumber = f.Number
			oc.Departure = o.Origin
			oc.Day = f.Day
		}
		out = append(out, oc)
	}
	return out
}
