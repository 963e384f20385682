// Package transform holds the pure RecordSet rewrites applied to every
// partition: structural flattening and declared type casting. Nothing here
// performs I/O or returns an error.
package transform

import (
	"github.com/brensch/pscparquet/internal/recordset"
)

// FlattenStats describes what Flatten did to one RecordSet.
type FlattenStats struct {
	UnnestPasses int      // unnest passes that replaced at least one record column
	Exploded     []string // list columns exploded, in order
	RowsIn       int
	RowsOut      int
}

// Flatten removes every record and list column from rs.
func Flatten(rs *recordset.RecordSet) *recordset.RecordSet {
	out, _ := FlattenWithStats(rs)
	return out
}

// FlattenWithStats unnests record columns until none remain, then explodes
// the list columns present at that point in column order, each explosion
// consuming the previous one's output. Sibling lists therefore multiply rows
// rather than pair up. If exploding surfaced record or list elements, the
// cycle runs again over those columns only.
//
// Rows whose list cell is empty vanish; rows whose list cell is null are kept
// once with a null cell.
func FlattenWithStats(rs *recordset.RecordSet) (*recordset.RecordSet, FlattenStats) {
	stats := FlattenStats{RowsIn: rs.Len()}
	cols := rs.Columns()
	for {
		var passes int
		cols, passes = unnestAll(cols)
		stats.UnnestPasses += passes

		lists := listColumns(cols)
		if len(lists) == 0 {
			break
		}
		for _, name := range lists {
			cols = explode(cols, indexOf(cols, name))
			stats.Exploded = append(stats.Exploded, name)
		}
	}
	out := recordset.MustNew(cols...)
	stats.RowsOut = out.Len()
	return out, stats
}

// unnestAll drains the worklist of record columns one pass at a time.
func unnestAll(cols []recordset.Column) ([]recordset.Column, int) {
	passes := 0
	for {
		worklist := 0
		for _, c := range cols {
			if c.Type.IsRecord() {
				worklist++
			}
		}
		if worklist == 0 {
			return cols, passes
		}
		cols = unnestPass(cols)
		passes++
	}
}

// unnestPass replaces each record column with one column per field. A name
// already present in the output is overwritten in its original slot.
func unnestPass(cols []recordset.Column) []recordset.Column {
	out := make([]recordset.Column, 0, len(cols))
	put := func(c recordset.Column) {
		if i := indexOf(out, c.Name); i >= 0 {
			out[i] = c
			return
		}
		out = append(out, c)
	}
	for _, c := range cols {
		if !c.Type.IsRecord() {
			put(c)
			continue
		}
		for _, f := range c.Type.Fields {
			values := make([]any, len(c.Values))
			for i, v := range c.Values {
				if m, ok := v.(map[string]any); ok {
					values[i] = m[f.Name]
				}
			}
			put(recordset.Column{Name: f.Name, Type: f.Type, Values: values})
		}
	}
	return out
}

// explode expands column idx to one row per list element and repeats every
// other column's cell for each expansion.
func explode(cols []recordset.Column, idx int) []recordset.Column {
	src := cols[idx]
	take := make([]int, 0, len(src.Values))
	elems := make([]any, 0, len(src.Values))
	for row, v := range src.Values {
		list, ok := v.([]any)
		if !ok {
			take = append(take, row)
			elems = append(elems, nil)
			continue
		}
		for _, e := range list {
			take = append(take, row)
			elems = append(elems, e)
		}
	}

	out := make([]recordset.Column, len(cols))
	for j, c := range cols {
		if j == idx {
			out[j] = recordset.Column{Name: c.Name, Type: *c.Type.Elem, Values: elems}
			continue
		}
		values := make([]any, len(take))
		for k, row := range take {
			values[k] = c.Values[row]
		}
		out[j] = recordset.Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return out
}

func listColumns(cols []recordset.Column) []string {
	var names []string
	for _, c := range cols {
		if c.Type.IsList() {
			names = append(names, c.Name)
		}
	}
	return names
}

func indexOf(cols []recordset.Column, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}
