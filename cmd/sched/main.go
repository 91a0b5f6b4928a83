// Command sched runs one greedy scheduling pass over a flight schedule file
// and an order file, printing the flight table and the per-order report.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"freightsched/internal/orders"
	"freightsched/internal/sched"
	"freightsched/internal/schedule"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sched", flag.ContinueOnError)
	fs.SetOutput(stderr)
	schedPath := fs.String("schedule", "", "path to the flight schedule text file")
	ordersPath := fs.String("orders", "", "path to the orders JSON file")
	capacity := fs.Int("capacity", schedule.DefaultCapacity, "seats per flight")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *schedPath == "" || *ordersPath == "" {
		fmt.Fprintln(stderr, "usage: sched -schedule FILE -orders FILE [-capacity N]")
		return 2
	}

	text, err := os.ReadFile(*schedPath)
	if err != nil {
		fmt.Fprintf(stderr, "sched: %v\n", err)
		return 1
	}
	sc, err := schedule.ParseWithCapacity(string(text), *capacity)
	if err != nil {
		fmt.Fprintf(stderr, "sched: load schedule: %v\n", err)
		return 1
	}

	f, err := os.Open(*ordersPath)
	if err != nil {
		fmt.Fprintf(stderr, "sched: %v\n", err)
		return 1
	}
	book, err := orders.Load(f)
	_ = f.Close()
	if err != nil {
		fmt.Fprintf(stderr, "sched: load orders: %v\n", err)
		return 1
	}

	runner := sched.New(sc, book)
	stats := runner.Schedule()

	fmt.Fprintln(stdout, "Flights:")
	for _, fl := range sc.Flights() {
		fmt.Fprintf(stdout, "  Flight %d: %s to %s, day %d, load %d/%d\n",
			fl.Number, fl.Departure, fl.Destination, fl.Day, fl.Load, fl.Capacity)
	}

	fmt.Fprintln(stdout, "Orders:")
	for _, o := range runner.Report() {
		if !o.Scheduled {
			fmt.Fprintf(stdout, "  %s: not scheduled\n", o.OrderID)
			continue
		}
		fmt.Fprintf(stdout, "  %s: flight %d, %s to %s, day %d\n",
			o.OrderID, o.FlightNumber, o.Departure, o.Destination, o.Day)
	}
	fmt.Fprintf(stdout, "Assigned %d of %d orders (%d unassigned)\n",
		stats.Assigned, stats.Assigned+stats.Unassigned, stats.Unassigned)
	return 0
}
