// Package dataframe implements a minimal tabular-file previewer: paginated,
// optionally filtered and sorted reads over CSV/TSV files, used by the
// file-read, dataframe/rows, and dataframe/query endpoints. There is no
// third-party tabular library in the dependency set this bridge draws from,
// so this stays on encoding/csv rather than reach for one.
package dataframe

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ColumnInfo describes one inferred column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // "int", "float", or "string"
}

// Preview is the shared response shape for a tabular read or query.
type Preview struct {
	Type       string           `json:"type"`
	Columns    []string         `json:"columns"`
	ColumnInfo []ColumnInfo     `json:"columnInfo"`
	Data       []map[string]any `json:"data"`
	TotalRows  int              `json:"totalRows"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
}

// Filter is a single equality/comparison predicate applied before sorting
// and pagination.
type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"` // "eq", "neq", "gt", "gte", "lt", "lte", "contains"
	Value  string `json:"value"`
}

// Sort orders rows by one column.
type Sort struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

const delimiterTabExt = ".tsv"

// IsTabular reports whether path's extension is one this package can
// preview.
func IsTabular(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, delimiterTabExt)
}

// Read loads path fully, applies filters and sort, then slices
// [offset, offset+limit) of the result into Data. TotalRows reflects the
// post-filter row count, not the file's raw row count.
func Read(path string, filters []Filter, sortBy *Sort, offset, limit int) (*Preview, error) {
	rows, columns, types, err := readAll(path)
	if err != nil {
		return nil, err
	}

	filtered := applyFilters(rows, filters)
	if sortBy != nil {
		applySort(filtered, *sortBy, types)
	}

	total := len(filtered)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	var page []map[string]any
	if offset < total {
		page = filtered[offset:end]
	}

	colInfo := make([]ColumnInfo, len(columns))
	for i, c := range columns {
		colInfo[i] = ColumnInfo{Name: c, Type: types[c]}
	}

	return &Preview{
		Type:       "dataframe",
		Columns:    columns,
		ColumnInfo: colInfo,
		Data:       page,
		TotalRows:  total,
		Offset:     offset,
		Limit:      limit,
	}, nil
}

func readAll(path string) ([]map[string]any, []string, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), delimiterTabExt) {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}

	var records [][]string
	for {
		rec, readErr := r.Read()
		if readErr != nil {
			break
		}
		records = append(records, rec)
	}

	types := inferColumnTypes(header, records)
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(header))
		for j, col := range header {
			var v any
			if j < len(rec) {
				v = convert(rec[j], types[col])
			}
			row[col] = v
		}
		rows[i] = row
	}

	return rows, header, types, nil
}

func inferColumnTypes(header []string, records [][]string) map[string]string {
	types := make(map[string]string, len(header))
	for _, col := range header {
		types[col] = "string"
	}
	if len(records) == 0 {
		return types
	}
	sample := records[0]
	for i, col := range header {
		if i >= len(sample) {
			continue
		}
		v := sample[i]
		if _, err := strconv.Atoi(v); err == nil {
			types[col] = "int"
		} else if _, err := strconv.ParseFloat(v, 64); err == nil {
			types[col] = "float"
		}
	}
	return types
}

func convert(raw, kind string) any {
	switch kind {
	case "int":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func applyFilters(rows []map[string]any, filters []Filter) []map[string]any {
	if len(filters) == 0 {
		return rows
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if matchesAll(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func matchesAll(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(row[f.Column], f) {
			return false
		}
	}
	return true
}

func matches(value any, f Filter) bool {
	a := fmt.Sprintf("%v", value)
	switch f.Op {
	case "neq":
		return a != f.Value
	case "contains":
		return strings.Contains(a, f.Value)
	case "gt", "gte", "lt", "lte":
		af, aerr := strconv.ParseFloat(a, 64)
		bf, berr := strconv.ParseFloat(f.Value, 64)
		if aerr != nil || berr != nil {
			return false
		}
		switch f.Op {
		case "gt":
			return af > bf
		case "gte":
			return af >= bf
		case "lt":
			return af < bf
		default:
			return af <= bf
		}
	default: // "eq"
		return a == f.Value
	}
}

func applySort(rows []map[string]any, s Sort, types map[string]string) {
	numeric := types[s.Column] == "int" || types[s.Column] == "float"
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i][s.Column], rows[j][s.Column]
		var less bool
		if numeric {
			fi, _ := strconv.ParseFloat(fmt.Sprintf("%v", vi), 64)
			fj, _ := strconv.ParseFloat(fmt.Sprintf("%v", vj), 64)
			less = fi < fj
		} else {
			less = fmt.Sprintf("%v", vi) < fmt.Sprintf("%v", vj)
		}
		if s.Descending {
			return !less
		}
		return less
	})
}
