// Package schedule implements the flight schedule model: parsing the plain
// text schedule format and answering capacity-aware destination queries in
// first-fit order.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCapacity is the seat count every flight is created with.
const DefaultCapacity = 20

// Loader error kinds. A load either succeeds completely or yields no
// schedule at all; callers must not schedule after a failed load.
var (
	ErrMalformed         = errors.New("malformed schedule input")
	ErrMissingDayContext = errors.New("flight line before any day header")
	ErrNoInput           = errors.New("schedule input is empty")
)

// Flight is one scheduled departure. Load counts orders assigned to it and
// is mutated only by the scheduler; Load <= Capacity always holds.
type Flight struct {
	Number      int
	Departure   string
	Destination string
	Day         int
	Capacity    int
	Load        int
}

// Full reports whether the flight has no seats left.
func (f *Flight) Full() bool { return f.Load >= f.Capacity }

// Schedule holds flights in source order: day ascending, then declaration
// order within a day. That order is the first-fit tie-break order.
type Schedule struct {
	flights []*Flight
}

// codeRe matches a parenthesized 3-letter airport code. The first group on a
// flight line is the departure, the second the destination; the city names
// in front of them are ignored.
var codeRe = regexp.MustCompile(`\(([A-Z]{3})\)`)

// Parse builds a schedule from the raw text with DefaultCapacity per flight.
func Parse(text string) (*Schedule, error) {
	return ParseWithCapacity(text, DefaultCapacity)
}

// ParseWithCapacity is Parse with an explicit per-flight capacity. The text
// alternates day headers ("Day 1:") and flight lines
// ("Flight 7: Montreal(YUL) to Toronto(YYZ)") under the current day. Any
// structural violation aborts the whole load.
func ParseWithCapacity(text string, capacity int) (*Schedule, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	sched := &Schedule{}
	day := 0
	seen := 0
	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		head, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing ':' separator: %w", n, ErrMalformed)
		}
		fields := strings.Fields(head)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want '<kind> <number>:', got %q: %w", n, head, ErrMalformed)
		}
		num, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %q is not a number: %w", n, fields[1], ErrMalformed)
		}
		switch fields[0] {
		case "Day":
			if num < 1 {
				return nil, fmt.Errorf("line %d: day must be >= 1, got %d: %w", n, num, ErrMalformed)
			}
			day = num
		case "Flight":
			if day == 0 {
				return nil, fmt.Errorf("line %d: %w", n, ErrMissingDayContext)
			}
			codes := codeRe.FindAllStringSubmatch(rest, 2)
			if len(codes) < 2 {
				return nil, fmt.Errorf("line %d: want two (XXX) airport codes: %w", n, ErrMalformed)
			}
			sched.flights = append(sched.flights, &Flight{
				Number:      num,
				Departure:   codes[0][1],
				Destination: codes[1][1],
				Day:         day,
				Capacity:    capacity,
			})
		default:
			return nil, fmt.Errorf("line %d: unknown line kind %q: %w", n, fields[0], ErrMalformed)
		}
	}
	if seen == 0 {
		return nil, ErrNoInput
	}
	return sched, nil
}

// NextAvailable returns the first flight in schedule order serving dest with
// a seat left, or nil when every matching flight is full or none exists.
// Earliest day wins, then earliest declared flight on that day.
func (s *Schedule) NextAvailable(dest string) *Flight {
	for _, f := range s.flights {
		if f.Destination == dest && !f.Full() {
			return f
		}
	}
	return nil
}

// Flights returns the flights in schedule order. The slice is a copy; the
// flights themselves are shared, so loads read here reflect scheduling.
func (s *Schedule) Flights() []*Flight {
	out := make([]*Flight, len(s.flights))
	copy(out, s.flights)
	return out
}

// Len returns the number of flights.
func (s *Schedule) Len() int { return len(s.flights) }

// Clone returns a deep copy with all loads reset to zero, so independent
// scheduling runs can start from the same stored schedule.
func (s *Schedule) Clone() *Schedule {
	c := &Schedule{flights: make([]*Flight, len(s.flights))}
	for i, f := range s.flights {
		cp := *f
		cp.Load = 0
		c.flights[i] = &cp
	}
	return c
}

// FromFlights rebuilds a schedule from stored flight rows, preserving order.
func FromFlights(fs []Flight) *Schedule {
	s := &Schedule{flights: make([]*Flight, len(fs))}
	for i := range fs {
		cp := fs[i]
		if cp.Capacity <= 0 {
			cp.Capacity = DefaultCapacity
		}
		cp.Load = 0
		s.flights[i] = &cp
	}
	return s
}
