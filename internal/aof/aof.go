// Package aof computes the trailing volume-weighted average price (AOF) per
// contract over a sliding window.
package aof

import "time"

// DefaultHorizon is the trailing window length used by the pipeline.
const DefaultHorizon = time.Hour

type entry struct {
	ts    time.Time
	price float64
	qty   float64
}

// Aggregator owns one bounded in-memory window per contract. It is not safe
// for concurrent use; the caller must serialize calls, which the per-channel
// single-reader loop already guarantees.
type Aggregator struct {
	horizon time.Duration
	windows map[string][]entry
}

// New returns an Aggregator with the given trailing window length.
func New(horizon time.Duration) *Aggregator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Aggregator{
		horizon: horizon,
		windows: make(map[string][]entry),
	}
}

// Update appends the observation to the contract's window, evicts entries
// older than ts-horizon, and returns the volume-weighted average price over
// the surviving window.
//
// The eviction horizon is anchored to the incoming event's timestamp rather
// than wall-clock time, so replaying a recorded stream yields identical
// results regardless of replay speed.
//
// If the surviving window carries zero total quantity (malformed first
// entry), the incoming price is returned instead of dividing by zero.
func (a *Aggregator) Update(contractName string, ts time.Time, price, qty float64) float64 {
	window := append(a.windows[contractName], entry{ts: ts, price: price, qty: qty})

	horizon := ts.Add(-a.horizon)
	kept := window[:0]
	for _, e := range window {
		if !e.ts.Before(horizon) {
			kept = append(kept, e)
		}
	}
	a.windows[contractName] = kept

	var totalAmount, totalQty float64
	for _, e := range kept {
		totalAmount += e.price * e.qty
		totalQty += e.qty
	}
	if totalQty == 0 {
		return price
	}
	return totalAmount / totalQty
}

// Drop discards the window for a contract. Intended for contracts past their
// cutoff; purely a memory optimization, never required for correctness.
func (a *Aggregator) Drop(contractName string) {
	delete(a.windows, contractName)
}
