package core

// package.go implements the packager: partitioning the row store into
// accepted and rejected rows and serializing both halves.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ArtifactFormat selects the tabular encoding of artifacts.
type ArtifactFormat string

const (
	FormatXLSX ArtifactFormat = "xlsx"
	FormatCSV  ArtifactFormat = "csv"
)

// Artifact base names.
const (
	AcceptedArtifact = "success"
	RejectedArtifact = "errors"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeCSV  = "text/csv"

	sheetName = "Sheet1"
)

// ParseArtifactFormat accepts "xlsx" or "csv" (case-insensitive).
func ParseArtifactFormat(s string) (ArtifactFormat, error) {
	switch ArtifactFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX, "":
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported artifact format %q", s)
}

// FileName returns base with the format's extension.
func (f ArtifactFormat) FileName(base string) string {
	return base + "." + string(f)
}

func (f ArtifactFormat) mimeType() string {
	if f == FormatCSV {
		return mimeCSV
	}
	return mimeXLSX
}

// partition splits rows into accepted and rejected. A row is rejected when it
// has a current violation or a skip record. The rejection reason prefers the
// current violation messages and falls back to the messages recorded at skip.
func partition(rows []Row, violations []Violation, skips []SkipRecord) (accepted []Row, rejected []Row, reasons []string) {
	byRow := groupByRow(violations)
	skipped := make(map[int]SkipRecord, len(skips))
	for _, s := range skips {
		skipped[s.RowIndex] = s
	}

	for i, row := range rows {
		vs, bad := byRow[i]
		rec, wasSkipped := skipped[i]
		if !bad && !wasSkipped {
			accepted = append(accepted, row)
			continue
		}
		var msgs []string
		if bad {
			for _, v := range vs {
				msgs = append(msgs, v.Message)
			}
		} else {
			msgs = rec.Messages
		}
		rejected = append(rejected, row)
		reasons = append(reasons, strings.Join(msgs, "; "))
	}
	return accepted, rejected, reasons
}

// buildArtifacts serializes the partition. Both artifacts are always
// produced; an empty half still carries its header row.
func buildArtifacts(format ArtifactFormat, columns []string, accepted, rejected []Row, reasons []string) ([]Artifact, error) {
	okTable := make([][]any, len(accepted))
	for i, r := range accepted {
		okTable[i] = rowCells(r, columns)
	}

	errColumns := append(append([]string(nil), columns...), ColumnErrorReason)
	errTable := make([][]any, len(rejected))
	for i, r := range rejected {
		errTable[i] = append(rowCells(r, columns), reasons[i])
	}

	okArt, err := encodeArtifact(format, format.FileName(AcceptedArtifact), columns, okTable)
	if err != nil {
		return nil, err
	}
	errArt, err := encodeArtifact(format, format.FileName(RejectedArtifact), errColumns, errTable)
	if err != nil {
		return nil, err
	}
	return []Artifact{okArt, errArt}, nil
}

func rowCells(r Row, columns []string) []any {
	cells := make([]any, len(columns))
	for i, c := range columns {
		cells[i] = r.values[c]
	}
	return cells
}

func encodeArtifact(format ArtifactFormat, name string, header []string, rows [][]any) (Artifact, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = encodeCSV(header, rows)
	default:
		data, err = encodeXLSX(header, rows)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Artifact{Name: name, MimeType: format.mimeType(), Rows: len(rows), data: data}, nil
}

func encodeCSV(header []string, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	rec := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			rec[i] = CellString(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := setRow(f, 1, headerCells); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = xlsxCell(v)
		}
		if err := setRow(f, i+2, cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, rowNum int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &cells)
}

// xlsxCell keeps numbers numeric in the workbook. Strings and booleans are
// written as text so read-back yields the same rendering as CellString.
func xlsxCell(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	default:
		return CellString(t)
	}
}
