// Package models provides the data structures moved by the bridge.
//
// The bridge transfers exactly one shape of data: a full tabular snapshot of
// a REDCap project export. RecordTable keeps the export's column order (it
// drives both the UI preview and the destination DDL) and stores every value
// as a string, matching the untyped CSV export REDCap serves.
package models

// Row is a single exported record, mapping field name to value.
type Row map[string]string

// RecordTable is an in-memory tabular snapshot of a project export.
// It is created by the source connector, held in UI session state between
// the fetch and load actions, and never persisted locally.
type RecordTable struct {
	// Columns preserves the field order of the export.
	Columns []string
	// Rows holds the exported records in export order.
	Rows []Row
}

// NewRecordTable creates an empty table with the given column order.
func NewRecordTable(columns []string) *RecordTable {
	return &RecordTable{Columns: columns}
}

// Append adds a row to the table.
func (t *RecordTable) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *RecordTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// IsEmpty reports whether the table is absent or has zero rows. Loads must
// short-circuit on an empty table without touching the destination.
func (t *RecordTable) IsEmpty() bool {
	return t.Len() == 0
}

// Head returns up to n rows for previewing. The returned slice aliases the
// table's rows; callers must not mutate it.
func (t *RecordTable) Head(n int) []Row {
	if t == nil || n <= 0 {
		return nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Value returns the value of the named field in the given row, or the empty
// string when the field is absent.
func (r Row) Value(column string) string {
	return r[column]
}
