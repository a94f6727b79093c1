// Package models defines the domain records flowing through the pipeline.
package models

import "time"

// TimeLayout is the ISO-8601 seconds-precision layout used for all persisted
// timestamps. Normalizing to one layout keeps the natural keys stable across
// venue formatting variations.
const TimeLayout = "2006-01-02T15:04:05"

// TradeRecord represents one observed execution on the intraday market,
// normalized from the venue's TradeHistoryChannel format.
type TradeRecord struct {
	// ContractName identifies the instrument and delivery window,
	// e.g. "PH25011014" (market code + yymmddhh).
	ContractName string `json:"contractName"`

	// Time is the event time reported by the venue. When the reported value
	// cannot be parsed, the ingestion time is substituted and
	// TimeSubstituted is set.
	Time time.Time `json:"time"`

	// TimeSubstituted marks records whose venue timestamp was unusable.
	TimeSubstituted bool `json:"timeSubstituted,omitempty"`

	// Price is the execution price. Always positive.
	Price float64 `json:"price"`

	// Quantity is the executed volume. Always positive.
	Quantity float64 `json:"quantity"`

	// Region is an optional venue-reported region. Empty when absent.
	Region string `json:"region,omitempty"`

	// IngestedAt is the wall-clock time of local receipt.
	IngestedAt time.Time `json:"ingestedAt"`

	// AOF1h is the volume-weighted average price over the trailing one hour
	// window for the contract, computed at the moment of ingestion. It is a
	// point-in-time annotation and is never recomputed retroactively.
	AOF1h float64 `json:"aof1h"`
}
