// Package meta loads and indexes the plan/product metadata table that backs
// the plan datasets.
//
// The table is a plain CSV keyed by (id, plan_id, prod_id) with one numeric
// target column and arbitrary attribute columns. It is loaded once, validated,
// optionally filtered to rows whose product image exists on disk, and treated
// as immutable afterwards; the per-plan index is built once at construction so
// item access never rescans the table.
package meta

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Key column names every table must carry.
const (
	ColID     = "id"
	ColPlanID = "plan_id"
	ColProdID = "prod_id"
)

// Default attribute sets, matching the metadata export. Callers may request
// any subset of columns instead.
var (
	DefaultPlanAttrs = []string{
		"plan_name",
		"plan_startdate",
		"plan_cat1",
		"plan_cat2",
		"plan_kwds",
	}
	DefaultProdAttrs = []string{
		"prod_name",
		"prod_text",
		"prod_opendate",
		"prod_cat1",
		"prod_cat2",
		"prod_cat3",
		"prod_cat4",
		"prod_page_title",
	}
)

// Table is an immutable, column-indexed view over the metadata CSV.
type Table struct {
	cols     []string
	colIndex map[string]int
	records  [][]string
}

// LoadCSV reads a metadata table from a CSV file. The first record is the
// header; column names are normalized to lower case.
func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata CSV %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata header: %w", err)
	}

	cols := make([]string, len(header))
	for i, col := range header {
		cols[i] = strings.TrimSpace(strings.ToLower(col))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata rows: %w", err)
	}

	return NewTable(cols, records)
}

// NewTable builds a table from an in-memory header and records. Mostly useful
// for tests and synthetic fixtures.
func NewTable(cols []string, records [][]string) (*Table, error) {
	colIndex := make(map[string]int, len(cols))
	for i, col := range cols {
		if _, dup := colIndex[col]; dup {
			return nil, fmt.Errorf("duplicate metadata column %q", col)
		}
		colIndex[col] = i
	}
	for _, key := range []string{ColID, ColPlanID, ColProdID} {
		if _, ok := colIndex[key]; !ok {
			return nil, fmt.Errorf("metadata is missing required column %q", key)
		}
	}
	for i, rec := range records {
		if len(rec) != len(cols) {
			return nil, fmt.Errorf("metadata row %d has %d fields, header has %d", i, len(rec), len(cols))
		}
	}
	return &Table{cols: cols, colIndex: colIndex, records: records}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.records) }

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// RequireColumns fails if any of the named columns is absent.
func (t *Table) RequireColumns(names []string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return fmt.Errorf("there is no %q column in the metadata", name)
		}
	}
	return nil
}

// Value returns the raw string value at (row, column). The column must exist;
// callers validate requested columns at construction time.
func (t *Table) Value(row int, col string) string {
	return t.records[row][t.colIndex[col]]
}

// Float parses the value at (row, column) as float64.
func (t *Table) Float(row int, col string) (float64, error) {
	raw := strings.TrimSpace(t.Value(row, col))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d column %q: failed to parse %q as number: %w", row, col, raw, err)
	}
	return v, nil
}

// PlanID returns the plan identifier of a row.
func (t *Table) PlanID(row int) string { return t.Value(row, ColPlanID) }

// ProdID returns the product identifier of a row.
func (t *Table) ProdID(row int) string { return t.Value(row, ColProdID) }

// ID returns the row identifier of a row.
func (t *Table) ID(row int) string { return t.Value(row, ColID) }

// Attrs extracts the named columns of one row as a map.
func (t *Table) Attrs(row int, cols []string) map[string]string {
	out := make(map[string]string, len(cols))
	for _, col := range cols {
		out[col] = t.Value(row, col)
	}
	return out
}

// Select returns a new table holding the requested columns only, dropping
// everything the datasets did not ask for. Requested columns are
// deduplicated; key columns are always kept.
func (t *Table) Select(cols []string) (*Table, error) {
	want := append([]string{ColID, ColPlanID, ColProdID}, cols...)
	seen := make(map[string]bool, len(want))
	keep := make([]string, 0, len(want))
	for _, col := range want {
		if seen[col] {
			continue
		}
		seen[col] = true
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("there is no %q column in the metadata", col)
		}
		keep = append(keep, col)
	}
	sort.Strings(keep)

	records := make([][]string, len(t.records))
	for i := range t.records {
		rec := make([]string, len(keep))
		for j, col := range keep {
			rec[j] = t.Value(i, col)
		}
		records[i] = rec
	}
	return NewTable(keep, records)
}

// Filter returns a new table holding only the rows for which keep returns
// true. The receiver is left untouched.
func (t *Table) Filter(keep func(row int) bool) *Table {
	records := make([][]string, 0, len(t.records))
	for i := range t.records {
		if keep(i) {
			records = append(records, t.records[i])
		}
	}
	out, _ := NewTable(t.cols, records)
	return out
}

// PlanIndex maps each plan identifier to the ordered list of its row handles.
// It is built once at dataset construction so per-item access never rescans
// the table.
type PlanIndex struct {
	byPlan  map[string][]int
	planIDs []string
}

// BuildPlanIndex groups the table's rows by plan id, preserving both row
// order within a plan and first-appearance order of the plans themselves.
func BuildPlanIndex(t *Table) *PlanIndex {
	idx := &PlanIndex{byPlan: make(map[string][]int)}
	for row := 0; row < t.Len(); row++ {
		planID := t.PlanID(row)
		if _, ok := idx.byPlan[planID]; !ok {
			idx.planIDs = append(idx.planIDs, planID)
		}
		idx.byPlan[planID] = append(idx.byPlan[planID], row)
	}
	return idx
}

// Plans returns the unique plan ids in first-appearance order.
func (p *PlanIndex) Plans() []string {
	out := make([]string, len(p.planIDs))
	copy(out, p.planIDs)
	return out
}

// NumPlans returns the number of unique plans.
func (p *PlanIndex) NumPlans() int { return len(p.planIDs) }

// Rows returns the row handles of one plan. The second result is false when
// the plan id is unknown.
func (p *PlanIndex) Rows(planID string) ([]int, bool) {
	rows, ok := p.byPlan[planID]
	return rows, ok
}
