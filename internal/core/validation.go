package core

// validation.go implements the expense rule catalogue.
//
// Rules run per row in a fixed order (key format, key uniqueness, department,
// amount, currency, spend date, vendor, fx rate) so the violation list is
// deterministic for identical input. Two rules look beyond a single row:
// key uniqueness (first occurrence wins, later rows are flagged) and the
// future-date bound, which compares every row with one reference date.
//
// An absent field is validated as if it held an empty value.

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// RuleSet holds the constants of the rule catalogue.
type RuleSet struct {
	KeyPattern   *regexp.Regexp
	KeyHint      string
	Departments  []string
	Currencies   []string
	BaseCurrency string
	MaxAmount    float64
	FxMin        float64
	FxMax        float64
}

// DefaultRules returns the expense-report rule catalogue.
func DefaultRules() RuleSet {
	return RuleSet{
		KeyPattern: regexp.MustCompile(`^EMP\d{3,}$`),
		KeyHint:    "Must match EMP followed by 3+ digits.",
		Departments: []string{
			"Engineering", "Marketing", "Sales", "Finance",
			"HR", "Operations", "Legal", "Support",
		},
		Currencies: []string{
			"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "INR", "MXN",
			"BRL", "KRW", "SEK", "NOK", "DKK", "NZD", "SGD", "HKD", "TRY", "ZAR",
		},
		BaseCurrency: "USD",
		MaxAmount:    100000,
		FxMin:        0.1,
		FxMax:        500,
	}
}

// Validate checks every row and returns all violations ordered by row index
// and rule. rows is not modified.
func (rs RuleSet) Validate(rows []Row, ref time.Time) []Violation {
	var out []Violation
	firstSeen := make(map[string]int, len(rows))

	for idx, row := range rows {
		key := row.String(FieldEmployeeID)
		rowViolations := rs.checkKey(idx, key)

		if first, dup := firstSeen[key]; dup {
			rowViolations = append(rowViolations, Violation{
				RowIndex: idx,
				Field:    FieldEmployeeID,
				Message:  fmt.Sprintf("Duplicate employee_id '%s' — also at row %d.", key, first),
			})
		} else {
			firstSeen[key] = idx
		}

		rowViolations = append(rowViolations, rs.ValidateRow(idx, row, ref)...)
		out = append(out, rowViolations...)
	}

	return out
}

// ValidateRow applies the per-row rules other than key format and uniqueness.
func (rs RuleSet) ValidateRow(idx int, row Row, ref time.Time) []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{RowIndex: idx, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	dept := row.String(FieldDept)
	if !slices.Contains(rs.Departments, dept) {
		add(FieldDept, "Invalid department '%s'. Must be one of: %s.", dept, pyList(rs.Departments))
	}

	// An absent amount counts as 0; a present but unusable one is invalid.
	rawAmount, present := row.Get(FieldAmount)
	if !present {
		rawAmount = 0.0
	}
	if amount, ok := ParseNumber(rawAmount); !ok {
		add(FieldAmount, "Invalid amount value: '%s'.", CellString(rawAmount))
	} else if amount <= 0 || amount > rs.MaxAmount {
		add(FieldAmount, "Amount %s out of range. Must be > 0 and <= 100,000.", FormatFloat(amount))
	}

	currency := row.String(FieldCurrency)
	currencyValid := slices.Contains(rs.Currencies, currency)
	if !currencyValid {
		add(FieldCurrency, "Invalid currency '%s'. Must be a valid ISO 4217 code.", currency)
	}

	spend := row.String(FieldSpendDate)
	if d, ok := ParseISODate(spend); !ok {
		add(FieldSpendDate, "Invalid date format '%s'. Must be YYYY-MM-DD.", spend)
	} else if d.After(dateOnly(ref)) {
		add(FieldSpendDate, "Future date '%s' not allowed.", spend)
	}

	if strings.TrimSpace(row.String(FieldVendor)) == "" {
		add(FieldVendor, "Vendor must not be empty.")
	}

	if currencyValid && currency != rs.BaseCurrency {
		rawFx, _ := row.Get(FieldFxRate)
		switch fx, ok := ParseNumber(rawFx); {
		case isBlank(rawFx):
			add(FieldFxRate, "fx_rate is required for non-USD currency '%s'.", currency)
		case !ok:
			add(FieldFxRate, "Invalid fx_rate value: '%s'.", CellString(rawFx))
		case fx < rs.FxMin || fx > rs.FxMax:
			add(FieldFxRate, "fx_rate %s out of range [0.1, 500].", FormatFloat(fx))
		}
	}

	return out
}

func (rs RuleSet) checkKey(idx int, key string) []Violation {
	if rs.KeyPattern.MatchString(key) {
		return nil
	}
	return []Violation{{
		RowIndex: idx,
		Field:    FieldEmployeeID,
		Message:  fmt.Sprintf("Invalid employee_id format: '%s'. %s", key, rs.KeyHint),
	}}
}

// ErrorRowCount returns the number of distinct rows referenced by violations.
func ErrorRowCount(violations []Violation) int {
	seen := make(map[int]struct{}, len(violations))
	for _, v := range violations {
		seen[v.RowIndex] = struct{}{}
	}
	return len(seen)
}

// groupByRow returns violations keyed by row index, preserving rule order.
func groupByRow(violations []Violation) map[int][]Violation {
	out := make(map[int][]Violation)
	for _, v := range violations {
		out[v.RowIndex] = append(out[v.RowIndex], v)
	}
	return out
}

// ParseReferenceDate resolves the as-of date for the future-date rule.
// Blank or malformed input falls back to now.
func ParseReferenceDate(asOf string, now time.Time) time.Time {
	if d, ok := ParseISODate(strings.TrimSpace(asOf)); ok {
		return d
	}
	return dateOnly(now)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// pyList renders names sorted as a bracketed, quoted list.
func pyList(names []string) string {
	sorted := slices.Sorted(slices.Values(names))
	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
