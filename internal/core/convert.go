package core

// convert.go turns loosely typed cell values into the strings and numbers
// the rule catalogue and the transform engine work with.
//
// Cells arrive from the ingestion collaborator as scalars: strings, numbers,
// booleans or nil. Rendering follows the conventions of the spreadsheets the
// rules were written for: nil renders empty, integral floats render with a
// trailing ".0", and numeric strings may carry surrounding whitespace.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isoDateRegex pins the YYYY-MM-DD shape before time.Parse checks the calendar.
var isoDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

const isoDateLayout = "2006-01-02"

// normalizeValue converts decoder-specific scalar types into the small set of
// types stored in a Row: string, float64, bool or nil.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case time.Time:
		return t.Format(isoDateLayout)
	default:
		return fmt.Sprint(t)
	}
}

// CellString renders a cell value for messages, comparisons and artifacts.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return FormatFloat(t)
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}

// FormatFloat renders f the way spreadsheet users expect to see it echoed
// back: integral values keep one decimal place ("100.0").
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ParseNumber converts a cell to a finite float64.
// Returns false for nil, booleans, blanks, non-numeric text, NaN and Inf.
func ParseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || !numericRegex.MatchString(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ParseISODate parses a strict YYYY-MM-DD calendar date.
func ParseISODate(s string) (time.Time, bool) {
	if !isoDateRegex.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// isBlank reports whether a cell is absent, nil or whitespace-only text.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return math.IsNaN(t)
	default:
		return false
	}
}
