package core

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestCellString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"text", "HR", "HR"},
		{"integral float", 100.0, "100.0"},
		{"fraction", 12.5, "12.5"},
		{"negative", -5.0, "-5.0"},
		{"true", true, "True"},
		{"false", false, "False"},
		{"nan", math.NaN(), "nan"},
		{"inf", math.Inf(1), "inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CellString(tt.in); got != tt.want {
				t.Errorf("CellString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{"float", 42.5, 42.5, true},
		{"numeric string", "100", 100, true},
		{"padded string", "  7.25 ", 7.25, true},
		{"scientific", "1e3", 1000, true},
		{"leading dot", ".5", 0.5, true},
		{"signed", "-3", -3, true},
		{"blank", "  ", 0, false},
		{"text", "abc", 0, false},
		{"thousands separator", "1,000", 0, false},
		{"nan string", "NaN", 0, false},
		{"inf string", "inf", 0, false},
		{"nan float", math.NaN(), 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseISODate(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"2024-01-15", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-13-01", false},
		{"2024-1-5", false},
		{"15/01/2024", false},
		{"2024-01-15T00:00:00Z", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := ParseISODate(tt.in); ok != tt.wantOK {
			t.Errorf("ParseISODate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	day := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 5, 5.0},
		{"int64", int64(-2), -2.0},
		{"float32", float32(1.5), 1.5},
		{"json number", json.Number("12.75"), 12.75},
		{"json number overflow stays text", json.Number("1e999"), "1e999"},
		{"time", day, "2024-03-09"},
		{"string", "x", "x"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeValue(tt.in); got != tt.want {
				t.Errorf("normalizeValue(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	for _, v := range []any{nil, "", "   ", math.NaN()} {
		if !isBlank(v) {
			t.Errorf("isBlank(%#v) = false, want true", v)
		}
	}
	for _, v := range []any{"0", 0.0, false} {
		if isBlank(v) {
			t.Errorf("isBlank(%#v) = true, want false", v)
		}
	}
}
