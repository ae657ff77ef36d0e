package core

import (
	"maps"
	"slices"
	"strings"
)

// Schema is an ordered, append-only set of column names.
type Schema struct {
	cols []string
	idx  map[string]int
}

// NewSchema builds a schema, dropping blank and repeated names.
func NewSchema(columns []string) *Schema {
	s := &Schema{idx: make(map[string]int, len(columns))}
	for _, c := range columns {
		s.Append(c)
	}
	return s
}

// Append adds a column if it is not already present.
// Returns true when the schema grew.
func (s *Schema) Append(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if _, ok := s.idx[name]; ok {
		return false
	}
	s.idx[name] = len(s.cols)
	s.cols = append(s.cols, name)
	return true
}

// Has reports whether the column exists.
func (s *Schema) Has(name string) bool {
	_, ok := s.idx[name]
	return ok
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.cols) }

// Columns returns a copy of the column names in order.
func (s *Schema) Columns() []string { return slices.Clone(s.cols) }

// Row is one record of the row store. Its accessors are read-only; cells are
// changed through RowStore.Set so that the known-columns invariant holds.
type Row struct {
	values map[string]any
}

// Get returns the raw cell value and whether the field is present.
func (r Row) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// String returns the rendered cell value; absent fields render empty.
func (r Row) String(field string) string {
	return CellString(r.values[field])
}

// Float returns the cell as a finite number.
func (r Row) Float(field string) (float64, bool) {
	return ParseNumber(r.values[field])
}

// Values returns a copy of the row as a plain map.
func (r Row) Values() map[string]any {
	return maps.Clone(r.values)
}

func (r Row) clone() Row {
	return Row{values: maps.Clone(r.values)}
}

// RowStore is the canonical in-memory table of one run. Row indices are
// stable: rows are never removed or reordered.
type RowStore struct {
	schema *Schema
	rows   []Row
	frozen bool
}

// NewRowStore builds a store from ingested records. Columns that only appear
// in records are appended to the schema in first-seen order (sorted within
// a record, since map order is not stable).
func NewRowStore(columns []string, records []map[string]any) *RowStore {
	schema := NewSchema(columns)
	rows := make([]Row, len(records))
	for i, rec := range records {
		vals := make(map[string]any, len(rec))
		for _, k := range slices.Sorted(maps.Keys(rec)) {
			name := strings.TrimSpace(k)
			if name == "" {
				continue
			}
			schema.Append(name)
			vals[name] = normalizeValue(rec[k])
		}
		rows[i] = Row{values: vals}
	}
	return &RowStore{schema: schema, rows: rows}
}

// Len returns the number of rows.
func (s *RowStore) Len() int { return len(s.rows) }

// Schema returns the store's column schema.
func (s *RowStore) Schema() *Schema { return s.schema }

// Row returns a copy of the row at index i.
func (s *RowStore) Row(i int) (Row, bool) {
	if i < 0 || i >= len(s.rows) {
		return Row{}, false
	}
	return s.rows[i].clone(), true
}

// InRange reports whether i addresses an existing row.
func (s *RowStore) InRange(i int) bool {
	return i >= 0 && i < len(s.rows)
}

// Snapshot returns a deep copy of every row.
func (s *RowStore) Snapshot() []Row {
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.clone()
	}
	return out
}

// view exposes the live rows to read-only in-package consumers.
func (s *RowStore) view() []Row { return s.rows }

// Set overwrites one cell and returns the previous value. A field not yet in
// the schema is appended to it. The caller must have range-checked i.
func (s *RowStore) Set(i int, field string, v any) (old any, err error) {
	if s.frozen {
		return nil, inputErr("set", "row store is read-only after packaging")
	}
	if !s.InRange(i) {
		return nil, &RangeError{Op: "set", RowIndex: i, Rows: len(s.rows)}
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, inputErr("set", "field name is required")
	}
	s.schema.Append(field)
	old = s.rows[i].values[field]
	s.rows[i].values[field] = normalizeValue(v)
	return old, nil
}

// freeze makes the store read-only. Packaging calls it after the derived
// columns are written.
func (s *RowStore) freeze() { s.frozen = true }

// stripColumns returns copies of columns and records without the dropped
// columns. Only used at ingestion, before any row index is handed out.
func stripColumns(columns []string, records []map[string]any, drop []string) ([]string, []map[string]any) {
	var kept []string
	for _, c := range columns {
		if !slices.Contains(drop, strings.TrimSpace(c)) {
			kept = append(kept, c)
		}
	}
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		m := make(map[string]any, len(rec))
		for k, v := range rec {
			if !slices.Contains(drop, strings.TrimSpace(k)) {
				m[k] = v
			}
		}
		out[i] = m
	}
	return kept, out
}
