package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func TestDecodeSheet_CSV(t *testing.T) {
	data := "\ufeffemployee_id, amount ,vendor\nEMP001,100,Acme\n,,\nEMP002,5\n"

	header, rows, err := DecodeSheet("report.CSV", strings.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeSheet() error = %v", err)
	}
	if diff := cmp.Diff([]string{"employee_id", "amount", "vendor"}, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	want := []map[string]any{
		{"employee_id": "EMP001", "amount": "100", "vendor": "Acme"},
		{"employee_id": "EMP002", "amount": "5", "vendor": ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSheet_XLSX(t *testing.T) {
	f := excelize.NewFile()
	for cell, v := range map[string]any{
		"A1": "employee_id", "B1": "amount",
		"A2": "EMP001", "B2": 250.5,
		"A4": "EMP002", "B4": "abc",
	} {
		if err := f.SetCellValue("Sheet1", cell, v); err != nil {
			t.Fatalf("SetCellValue(%s) error = %v", cell, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	header, rows, err := DecodeSheet("report.xlsx", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeSheet() error = %v", err)
	}
	if diff := cmp.Diff([]string{"employee_id", "amount"}, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	want := []map[string]any{
		{"employee_id": "EMP001", "amount": "250.5"},
		{"employee_id": "EMP002", "amount": "abc"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSheet_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"empty csv", "a.csv", ""},
		{"not a workbook", "a.xlsx", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSheet(tt.file, strings.NewReader(tt.data))
			if !IsInputError(err) {
				t.Errorf("DecodeSheet() error = %v, want InputError", err)
			}
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	got := string(sanitizeUTF8([]byte("ok\xffend")))
	if got != "ok\ufffdend" {
		t.Errorf("sanitizeUTF8() = %q", got)
	}
}
