package contract

import (
	"testing"
	"time"
)

func TestCutoff(t *testing.T) {
	cutoff, ok := Cutoff("PH25011014")
	if !ok {
		t.Fatal("Expected PH25011014 to parse")
	}
	want := time.Date(2025, time.January, 10, 13, 0, 0, 0, time.Local)
	if !cutoff.Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, cutoff)
	}
}

func TestCutoffClampedAtMidnight(t *testing.T) {
	cutoff, ok := Cutoff("PH25011000")
	if !ok {
		t.Fatal("Expected PH25011000 to parse")
	}
	want := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.Local)
	if !cutoff.Equal(want) {
		t.Errorf("Expected cutoff clamped to %v, got %v", want, cutoff)
	}
}

func TestCutoffInvalidCodes(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"Wrong length", "PH2501101"},
		{"Embedded space", "PH2501101 4"},
		{"Wrong market code", "XX25011014"},
		{"Non-digit payload", "PH25ab1014"},
		{"Month out of range", "PH25130114"},
		{"Day does not exist", "PH25023014"},
		{"Hour out of range", "PH25011024"},
		{"Empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Cutoff(tt.code); ok {
				t.Errorf("Expected %q to have no cutoff", tt.code)
			}
		})
	}
}

func TestIsOpenBoundary(t *testing.T) {
	justBefore := time.Date(2025, time.January, 10, 12, 59, 59, 0, time.Local)
	atCutoff := time.Date(2025, time.January, 10, 13, 0, 0, 0, time.Local)
	justAfter := time.Date(2025, time.January, 10, 13, 0, 1, 0, time.Local)

	if !IsOpen("PH25011014", justBefore) {
		t.Error("Expected contract to be open just before cutoff")
	}
	if !IsOpen("PH25011014", atCutoff) {
		t.Error("Expected contract to be open exactly at cutoff")
	}
	if IsOpen("PH25011014", justAfter) {
		t.Error("Expected contract to be closed just after cutoff")
	}
}

func TestIsOpenUnparsableCode(t *testing.T) {
	if IsOpen("bogus", time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)) {
		t.Error("Unparsable codes must never be open")
	}
}

func TestDeliveryHour(t *testing.T) {
	hour, ok := DeliveryHour("PH25011014")
	if !ok || hour != 14 {
		t.Errorf("Expected hour 14, got %d (ok=%v)", hour, ok)
	}
	if _, ok := DeliveryHour("PH2501101"); ok {
		t.Error("Expected invalid code to have no delivery hour")
	}
}
