package core

// transform.go implements the transform engine: adding one derived column to
// every row of the store.
//
// Derivations form a closed set (constant, expression, lookup). Expressions
// use the restricted grammar in expr.go and their results are rounded half
// away from zero to two decimals, so monetary columns are stable across runs.

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// UnmappedValue is the default lookup result for keys missing from the map.
const UnmappedValue = "UNMAPPED"

// DerivationKind selects how a transform computes its column.
type DerivationKind int

const (
	DeriveConstant DerivationKind = iota
	DeriveExpression
	DeriveLookup
)

// Derivation describes how to compute one column value from a row.
type Derivation struct {
	Kind DerivationKind

	Value any // DeriveConstant

	Expression string // DeriveExpression

	LookupField string            // DeriveLookup
	LookupMap   map[string]string // DeriveLookup
	Unmapped    string            // DeriveLookup; defaults to UnmappedValue
}

// Constant returns a derivation writing v to every row.
func Constant(v any) Derivation { return Derivation{Kind: DeriveConstant, Value: v} }

// Expression returns a derivation evaluating src per row.
func Expression(src string) Derivation { return Derivation{Kind: DeriveExpression, Expression: src} }

// Lookup returns a derivation mapping field through m.
func Lookup(field string, m map[string]string, unmapped string) Derivation {
	return Derivation{Kind: DeriveLookup, LookupField: field, LookupMap: m, Unmapped: unmapped}
}

// rowFunc computes a column value for one row.
type rowFunc func(Row) (any, error)

// compile checks the derivation against the schema and returns its row
// function. Errors here are InputErrors raised before any mutation.
func (d Derivation) compile(schema *Schema) (rowFunc, error) {
	switch d.Kind {
	case DeriveConstant:
		v := normalizeValue(d.Value)
		return func(Row) (any, error) { return v, nil }, nil

	case DeriveExpression:
		if strings.TrimSpace(d.Expression) == "" {
			return nil, inputErr("transform", "expression is empty")
		}
		expr, err := ParseExpr(d.Expression, schema.Has)
		if err != nil {
			return nil, inputErr("transform", "%v", err)
		}
		return func(r Row) (any, error) {
			f, err := expr.Eval(r)
			if err != nil {
				return nil, err
			}
			return moneyValue(f)
		}, nil

	case DeriveLookup:
		if d.LookupField == "" || d.LookupMap == nil {
			return nil, inputErr("transform", "lookup requires both a field and a map")
		}
		if !schema.Has(d.LookupField) {
			return nil, inputErr("transform", "lookup references unknown column %q", d.LookupField)
		}
		unmapped := d.Unmapped
		if unmapped == "" {
			unmapped = UnmappedValue
		}
		return func(r Row) (any, error) {
			if v, ok := d.LookupMap[r.String(d.LookupField)]; ok {
				return v, nil
			}
			return unmapped, nil
		}, nil
	}
	return nil, inputErr("transform", "unknown derivation kind %d", d.Kind)
}

// applyTransform writes column to every row of store. Per-row failures are
// written as "ERROR: <reason>" and counted; they do not abort the transform.
func applyTransform(store *RowStore, column string, fn rowFunc) (TransformResult, error) {
	column = strings.TrimSpace(column)
	res := TransformResult{Column: column, RowCount: store.Len()}
	res.NewColumn = !store.Schema().Has(column)

	for i, row := range store.view() {
		v, err := fn(row)
		if err != nil {
			v = fmt.Sprintf("ERROR: %v", err)
			res.RowErrors++
		}
		if _, err := store.Set(i, column, v); err != nil {
			return res, &UnrecoverableError{Op: "transform", Err: err}
		}
	}
	return res, nil
}

// errNotFinite marks a computed value that overflowed or is NaN.
var errNotFinite = errors.New("result is not a finite number")

// RoundMoney rounds half away from zero to two decimal places. Infinities
// and NaN are returned unchanged.
func RoundMoney(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// moneyValue rounds a computed cell, rejecting values that cannot be stored.
func moneyValue(f float64) (any, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, errNotFinite
	}
	return RoundMoney(f), nil
}

// StandardDerivations are the columns every packaged run carries.
type StandardDerivations struct {
	CostCenters   map[string]string
	ApprovalDept  string
	ApprovalAbove float64
}

// DefaultCostCenters maps departments to cost centers.
func DefaultCostCenters() map[string]string {
	return map[string]string{
		"Finance":     "100",
		"HR":          "200",
		"Engineering": "300",
		"Operations":  "400",
	}
}

// DefaultStandardDerivations returns the stock derivation settings.
func DefaultStandardDerivations() StandardDerivations {
	return StandardDerivations{
		CostCenters:   DefaultCostCenters(),
		ApprovalDept:  "Finance",
		ApprovalAbove: 50000,
	}
}

// amountUSD converts amount to the base currency. Missing or unparsable
// values fall back to amount 0 and rate 1.
func amountUSD(r Row) (any, error) {
	amount, ok := r.Float(FieldAmount)
	if !ok {
		amount = 0
	}
	rate, ok := r.Float(FieldFxRate)
	if !ok {
		rate = 1
	}
	return moneyValue(amount * rate)
}

func (sd StandardDerivations) approval(r Row) (any, error) {
	amount, _ := r.Float(FieldAmount)
	if r.String(FieldDept) == sd.ApprovalDept && amount > sd.ApprovalAbove {
		return "YES", nil
	}
	return "NO", nil
}

func (sd StandardDerivations) costCenter(r Row) (any, error) {
	if cc, ok := sd.CostCenters[r.String(FieldDept)]; ok {
		return cc, nil
	}
	return UnmappedValue, nil
}

// columns returns the derived columns in output order.
func (sd StandardDerivations) columns() []struct {
	name string
	fn   rowFunc
} {
	return []struct {
		name string
		fn   rowFunc
	}{
		{ColumnAmountUSD, amountUSD},
		{ColumnCostCenter, sd.costCenter},
		{ColumnApprovalRequired, sd.approval},
	}
}
