package core

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPartition(t *testing.T) {
	rows := rowsOf(
		map[string]any{"id": "a"},
		map[string]any{"id": "b"},
		map[string]any{"id": "c"},
		map[string]any{"id": "d"},
	)
	violations := []Violation{
		{RowIndex: 1, Field: FieldAmount, Message: "Invalid amount value: 'x'."},
		{RowIndex: 1, Field: FieldVendor, Message: "Vendor must not be empty."},
		{RowIndex: 3, Field: FieldDept, Message: "bad dept"},
	}
	skips := []SkipRecord{
		{RowIndex: 2, Messages: []string{"old problem"}, Reason: SkipReasonTimeout},
		{RowIndex: 3, Messages: []string{"stale"}, Reason: SkipReasonUser},
	}

	accepted, rejected, reasons := partition(rows, violations, skips)

	if len(accepted) != 1 || accepted[0].String("id") != "a" {
		t.Errorf("accepted = %+v, want only row a", accepted)
	}
	var rejectedIDs []string
	for _, r := range rejected {
		rejectedIDs = append(rejectedIDs, r.String("id"))
	}
	if diff := cmp.Diff([]string{"b", "c", "d"}, rejectedIDs); diff != "" {
		t.Errorf("rejected mismatch (-want +got):\n%s", diff)
	}
	wantReasons := []string{
		"Invalid amount value: 'x'.; Vendor must not be empty.",
		"old problem",
		"bad dept",
	}
	if diff := cmp.Diff(wantReasons, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArtifacts(t *testing.T) {
	columns := []string{"id", "amount"}
	rows := rowsOf(
		map[string]any{"id": "a", "amount": 110.0},
		map[string]any{"id": "b", "amount": "n/a"},
	)

	for _, format := range []ArtifactFormat{FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			arts, err := buildArtifacts(format, columns, rows[:1], rows[1:], []string{"Invalid amount value: 'n/a'."})
			if err != nil {
				t.Fatalf("buildArtifacts() error = %v", err)
			}
			if len(arts) != 2 {
				t.Fatalf("got %d artifacts, want 2", len(arts))
			}
			if arts[0].Name != format.FileName(AcceptedArtifact) || arts[1].Name != format.FileName(RejectedArtifact) {
				t.Errorf("names = %q, %q", arts[0].Name, arts[1].Name)
			}
			if arts[0].MimeType != format.mimeType() {
				t.Errorf("MimeType = %q, want %q", arts[0].MimeType, format.mimeType())
			}

			header, got, err := ReadArtifact(arts[0])
			if err != nil {
				t.Fatalf("ReadArtifact(success) error = %v", err)
			}
			if diff := cmp.Diff(columns, header); diff != "" {
				t.Errorf("success header mismatch (-want +got):\n%s", diff)
			}
			if len(got) != 1 || got[0][0] != "a" {
				t.Fatalf("success rows = %v", got)
			}
			if f, err := strconv.ParseFloat(got[0][1], 64); err != nil || f != 110 {
				t.Errorf("amount = %q, want 110", got[0][1])
			}

			header, got, err = ReadArtifact(arts[1])
			if err != nil {
				t.Fatalf("ReadArtifact(errors) error = %v", err)
			}
			if diff := cmp.Diff([]string{"id", "amount", ColumnErrorReason}, header); diff != "" {
				t.Errorf("errors header mismatch (-want +got):\n%s", diff)
			}
			want := [][]string{{"b", "n/a", "Invalid amount value: 'n/a'."}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("errors rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildArtifacts_EmptyHalfKeepsHeader(t *testing.T) {
	for _, format := range []ArtifactFormat{FormatCSV, FormatXLSX} {
		arts, err := buildArtifacts(format, []string{"id"}, rowsOf(map[string]any{"id": "a"}), nil, nil)
		if err != nil {
			t.Fatalf("%s: buildArtifacts() error = %v", format, err)
		}
		header, rows, err := ReadArtifact(arts[1])
		if err != nil {
			t.Fatalf("%s: ReadArtifact() error = %v", format, err)
		}
		if diff := cmp.Diff([]string{"id", ColumnErrorReason}, header); diff != "" {
			t.Errorf("%s: header mismatch (-want +got):\n%s", format, diff)
		}
		if len(rows) != 0 || arts[1].Rows != 0 {
			t.Errorf("%s: rows = %v, Rows = %d, want none", format, rows, arts[1].Rows)
		}
	}
}

func TestParseArtifactFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ArtifactFormat
		wantErr bool
	}{
		{"xlsx", FormatXLSX, false},
		{" CSV ", FormatCSV, false},
		{"", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseArtifactFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseArtifactFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
