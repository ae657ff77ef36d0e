package core

// sheet.go decodes uploaded spreadsheets into the column list and row maps
// that Session.Ingest takes, and reads artifacts back into string tables.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// MaxSheetBytes bounds an uploaded sheet.
const MaxSheetBytes = 32 << 20

var errNoHeader = errors.New("sheet has no header row")

// DecodeSheet reads a .csv or .xlsx upload, chosen by the file name's
// extension, into header columns and one map per non-empty data row. Cells
// stay strings; the rules parse numbers themselves. The first sheet of a
// workbook is used.
func DecodeSheet(fileName string, r io.Reader) ([]string, []map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSheetBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(data) > MaxSheetBytes {
		return nil, nil, inputErr("decode sheet", "file exceeds %d bytes", MaxSheetBytes)
	}

	records, err := readTable(fileName, data)
	if err != nil {
		return nil, nil, inputErr("decode sheet", "%s: %v", fileName, err)
	}
	if len(records) == 0 {
		return nil, nil, inputErr("decode sheet", "%s: %v", fileName, errNoHeader)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRecord(rec) {
			continue
		}
		rec = padRow(rec, len(header))
		m := make(map[string]any, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			m[col] = rec[i]
		}
		rows = append(rows, m)
	}
	return header, rows, nil
}

// readTable returns the raw records of a csv or xlsx document.
func readTable(name string, data []byte) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(name), "."+string(FormatCSV)) {
		return parseCSV(sanitizeUTF8(data))
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return records, nil
}

// ReadArtifact decodes an artifact back into its header and rows. Every row
// is padded or truncated to the header width.
func ReadArtifact(a Artifact) ([]string, [][]string, error) {
	records, err := readTable(a.Name, a.data)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errNoHeader
	}
	header := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, padRow(rec, len(header)))
	}
	return header, rows, nil
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.WriteRune(r)
		}
		data = data[size:]
	}
	return buf.Bytes()
}

func isEmptyRecord(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
