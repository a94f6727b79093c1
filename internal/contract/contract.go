// Package contract derives lifecycle information from GIP contract codes.
//
// A contract code is 10 characters: the market code "PH" followed by a
// two-digit year, month, day, and delivery hour (PHyymmddhh). Trading on a
// contract closes one hour before delivery starts.
package contract

import (
	"strconv"
	"time"
)

const codeLen = 10

// Cutoff returns the instant after which the contract is closed for trading.
// The cutoff is the start of the delivery day at hour-1, clamped at hour 0.
// ok is false for codes that do not parse as PHyymmddhh; such contracts have
// no cutoff and are never alarm-eligible, but their data is still stored.
func Cutoff(code string) (cutoff time.Time, ok bool) {
	if len(code) != codeLen || code[:2] != "PH" {
		return time.Time{}, false
	}
	for i := 2; i < codeLen; i++ {
		if code[i] < '0' || code[i] > '9' {
			return time.Time{}, false
		}
	}

	yy, _ := strconv.Atoi(code[2:4])
	mm, _ := strconv.Atoi(code[4:6])
	dd, _ := strconv.Atoi(code[6:8])
	hh, _ := strconv.Atoi(code[8:10])

	if mm < 1 || mm > 12 || dd < 1 || dd > 31 || hh > 23 {
		return time.Time{}, false
	}

	day := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.Local)
	// time.Date normalizes overflow, so a Feb 30 would roll into March.
	if day.Month() != time.Month(mm) || day.Day() != dd {
		return time.Time{}, false
	}

	cutoffHour := hh - 1
	if cutoffHour < 0 {
		cutoffHour = 0
	}
	return time.Date(day.Year(), day.Month(), day.Day(), cutoffHour, 0, 0, 0, time.Local), true
}

// IsOpen reports whether the contract is still tradable at now.
// Contracts without a parsable cutoff are never considered open.
func IsOpen(code string, now time.Time) bool {
	cutoff, ok := Cutoff(code)
	return ok && !now.After(cutoff)
}

// DeliveryHour returns the delivery hour encoded in the contract code.
func DeliveryHour(code string) (int, bool) {
	if _, ok := Cutoff(code); !ok {
		return 0, false
	}
	hh, _ := strconv.Atoi(code[8:10])
	return hh, true
}
