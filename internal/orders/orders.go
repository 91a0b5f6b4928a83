// Package orders holds the shipment order model and the JSON loader. Orders
// carry no behavior beyond field access and a single forward binding
// transition; the book preserves insertion order, which is the scheduling
// priority order.
package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"freightsched/internal/schedule"
)

// DefaultOrigin is the fixed departure code shared by every order.
const DefaultOrigin = "YUL"

var ErrNoInput = errors.New("order input is empty")

// Order is one shipment order. The flight binding starts empty and moves to
// a flight at most once per run; it is never cleared or rebound.
type Order struct {
	ID          string
	Origin      string
	Destination string

	flight *schedule.Flight
}

// Assign binds the order to f. Rebinding is an error; the scheduler never
// attempts it.
func (o *Order) Assign(f *schedule.Flight) error {
	if o.flight != nil {
		return fmt.Errorf("order %s already assigned to flight %d", o.ID, o.flight.Number)
	}
	o.flight = f
	return nil
}

// Scheduled returns the bound flight and whether the order has one. An
// unassigned order is a normal terminal state, not an error.
func (o *Order) Scheduled() (*schedule.Flight, bool) {
	return o.flight, o.flight != nil
}

// Book is an insertion-ordered order collection. Iteration order equals
// priority order, highest priority first.
type Book struct {
	list  []*Order
	index map[string]*Order
}

func NewBook() *Book {
	return &Book{index: map[string]*Order{}}
}

// Add appends an order; duplicate ids are rejected so priority stays
// unambiguous.
func (b *Book) Add(o *Order) error {
	if o.ID == "" {
		return errors.New("order id is empty")
	}
	if _, ok := b.index[o.ID]; ok {
		return fmt.Errorf("duplicate order id %s", o.ID)
	}
	if o.Origin == "" {
		o.Origin = DefaultOrigin
	}
	b.list = append(b.list, o)
	b.index[o.ID] = o
	return nil
}

func (b *Book) Get(id string) (*Order, bool) {
	o, ok := b.index[id]
	return o, ok
}

func (b *Book) Len() int { return len(b.list) }

// All returns the orders in priority order. The slice is a copy.
func (b *Book) All() []*Order {
	out := make([]*Order, len(b.list))
	copy(out, b.list)
	return out
}

// record is the JSON shape of one order value; the order id arrives as the
// enclosing object key and is filled in explicitly after decode.
type record struct {
	Destination string `json:"destination"`
	Departure   string `json:"departure"`
}

// Load decodes a JSON object of orderID -> order record into a book,
// preserving the document's key order as priority order. The stream decoder
// is walked token by token because encoding/json maps do not keep key order.
func Load(r io.Reader) (*Book, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoInput
	}
	if err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("orders document must be a JSON object, got %v", tok)
	}
	book := NewBook()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode order id: %w", err)
		}
		id, _ := keyTok.(string)
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", id, err)
		}
		if err := book.Add(&Order{ID: id, Origin: rec.Departure, Destination: rec.Destination}); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after orders document")
	}
	return book, nil
}
