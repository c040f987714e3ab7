// Package runtable flattens heterogeneous run records into a single
// rectangular table: one row per run, fixed metadata columns, and one
// dynamic column per distinct metric, param, or tag key observed anywhere
// in the input.
package runtable

import "sort"

// Fixed column names, always present in a pivoted table.
const (
	ColDate        = "date"
	ColRunID       = "run_id"
	ColRunName     = "run_name"
	ColParentRunID = "parent_run_id"
	ColUserID      = "user_id"
)

var fixedColumns = []string{ColDate, ColRunID, ColRunName, ColParentRunID, ColUserID}

// Table is a rectangular, column-major view over a sequence of runs. Every
// column holds exactly NumRows values; absent entries carry the column
// kind's null sentinel (nil for params and tags, NaN for metrics). Row order
// matches the input run order. Column order carries no meaning.
type Table struct {
	nrows   int
	columns map[string][]any
}

// NumRows returns the number of rows (input runs).
func (t *Table) NumRows() int {
	return t.nrows
}

// Columns returns all column names: the fixed columns first, then dynamic
// columns sorted by name. Callers must not rely on this order beyond
// determinism within one process.
func (t *Table) Columns() []string {
	names := make([]string, 0, len(t.columns))
	names = append(names, fixedColumns...)
	dynamic := make([]string, 0, len(t.columns)-len(fixedColumns))
	for name := range t.columns {
		if !isFixedColumn(name) {
			dynamic = append(dynamic, name)
		}
	}
	sort.Strings(dynamic)
	return append(names, dynamic...)
}

// Column returns the values of one column, in row order.
func (t *Table) Column(name string) ([]any, bool) {
	col, ok := t.columns[name]
	return col, ok
}

// Row returns row i as a column-name-to-value mapping.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for name, col := range t.columns {
		row[name] = col[i]
	}
	return row
}

func isFixedColumn(name string) bool {
	for _, fixed := range fixedColumns {
		if name == fixed {
			return true
		}
	}
	return false
}
