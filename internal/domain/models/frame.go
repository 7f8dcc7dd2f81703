package models

import "sort"

// Row is one decoded JSON object.
type Row map[string]any

// Frame is a table of rows. Columns lists every key seen, "date" first.
type Frame struct {
	Columns []string
	Rows    []Row
}

func NewFrame(rows []Row) *Frame {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i] == "date" || cols[j] == "date" {
			return cols[i] == "date"
		}
		return cols[i] < cols[j]
	})
	return &Frame{Columns: cols, Rows: rows}
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Column returns the values of one column, nil where a row lacks it.
func (f *Frame) Column(name string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[name]
	}
	return out
}

// Record is a successfully parsed Job result: rows or a metadata object.
type Record struct {
	Frame  *Frame
	Object Row
}

// Len counts rows, a metadata object counts as one.
func (r *Record) Len() int {
	switch {
	case r == nil:
		return 0
	case r.Frame != nil:
		return r.Frame.Len()
	case r.Object != nil:
		return 1
	}
	return 0
}
