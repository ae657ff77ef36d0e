package core

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rowWith(values map[string]any) Row {
	r, _ := NewRowStore(nil, []map[string]any{values}).Row(0)
	return r
}

func TestParseExpr_Eval(t *testing.T) {
	row := rowWith(map[string]any{"amount": 100, "rate": "1.1", "qty": 4, "blank": "", "name": "Acme"})

	tests := []struct {
		src  string
		want float64
	}{
		{"amount*rate", 110.00000000000001},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"12 / 4 / 3", 1},
		{"-amount + 1", -99},
		{"--qty", 4},
		{"+qty * .5", 2},
		{"amount / qty", 25},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src, nil)
			if err != nil {
				t.Fatalf("ParseExpr(%q) error = %v", tt.src, err)
			}
			got, err := e.Eval(row)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestParseExpr_Errors(t *testing.T) {
	known := func(name string) bool { return name == "amount" || name == "rate" }

	tests := []struct {
		src     string
		wantErr string
	}{
		{"amount +", "unexpected end of input"},
		{"(amount + rate", "missing ')'"},
		{"amount rate", "unexpected \"rate\""},
		{"amount ** rate", "unexpected \"*\""},
		{"1.2.3", "bad number"},
		{"amount; drop", "unexpected \";\""},
		{"price * rate", "unknown column \"price\""},
		{"", "unexpected end of input"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseExpr(tt.src, known)
			if err == nil {
				t.Fatalf("ParseExpr(%q) expected error", tt.src)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), "expression") {
				t.Errorf("error %q should name the expression", err)
			}
		})
	}
}

func TestExpr_EvalRowErrors(t *testing.T) {
	row := rowWith(map[string]any{"amount": 10, "zero": 0, "blank": " ", "name": "Acme"})

	tests := []struct {
		src     string
		wantErr string
	}{
		{"amount / zero", "division by zero"},
		{"amount * blank", "blank is empty"},
		{"amount * missing", "missing is empty"},
		{"name + 1", "name is not numeric"},
	}
	for _, tt := range tests {
		e, err := ParseExpr(tt.src, nil)
		if err != nil {
			t.Fatalf("ParseExpr(%q) error = %v", tt.src, err)
		}
		if _, err := e.Eval(row); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("Eval(%q) error = %v, want %q", tt.src, err, tt.wantErr)
		}
	}
}

func TestExpr_FieldsAndString(t *testing.T) {
	e, err := ParseExpr("rate * amount + amount", nil)
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	if diff := cmp.Diff([]string{"rate", "amount"}, e.Fields()); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
	if e.String() != "rate * amount + amount" {
		t.Errorf("String() = %q", e.String())
	}
}
