// Package recordset holds the in-memory tabular form of one partition's
// parsed records: ordered named columns, each with a semantic type that may
// be a scalar, a nested record or a list.
package recordset

import (
	"fmt"
	"strings"
)

// Kind is the structural class of a column type.
type Kind int

const (
	KindScalar Kind = iota
	KindRecord
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	default:
		return "scalar"
	}
}

// Scalar identifies the leaf value type of a scalar column.
type Scalar int

const (
	Null Scalar = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Float64
	String
	Date
)

var scalarNames = map[Scalar]string{
	Null:    "null",
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Float64: "float64",
	String:  "string",
	Date:    "date",
}

func (s Scalar) String() string {
	if n, ok := scalarNames[s]; ok {
		return n
	}
	return fmt.Sprintf("scalar(%d)", int(s))
}

// IsInteger reports whether s is one of the fixed-width integer types.
func (s Scalar) IsInteger() bool {
	return s == Int8 || s == Int16 || s == Int32 || s == Int64
}

// ParseScalar maps a name such as "int8" or "Int16" to its Scalar.
func ParseScalar(name string) (Scalar, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for s, n := range scalarNames {
		if n == want {
			return s, nil
		}
	}
	return Null, fmt.Errorf("unknown scalar type %q", name)
}

// Type is the semantic type of a column. Fields is set for records, Elem for lists.
type Type struct {
	Kind   Kind
	Scalar Scalar
	Fields []Field
	Elem   *Type
}

// Field is one named member of a record type, or one column of a schema.
type Field struct {
	Name string
	Type Type
}

func ScalarType(s Scalar) Type { return Type{Kind: KindScalar, Scalar: s} }

func RecordType(fields ...Field) Type { return Type{Kind: KindRecord, Fields: fields} }

func ListOf(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

func (t Type) IsRecord() bool { return t.Kind == KindRecord }

func (t Type) IsList() bool { return t.Kind == KindList }

// Depth is the number of record levels in t, counting through list elements.
func (t Type) Depth() int {
	switch t.Kind {
	case KindRecord:
		max := 0
		for _, f := range t.Fields {
			if d := f.Type.Depth(); d > max {
				max = d
			}
		}
		return max + 1
	case KindList:
		return t.Elem.Depth()
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindRecord:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "record{" + strings.Join(parts, ", ") + "}"
	case KindList:
		return "list<" + t.Elem.String() + ">"
	default:
		return t.Scalar.String()
	}
}

// Column is a named, typed vector of cell values. Cells hold nil, bool,
// int8/16/32/64, float64, string, time.Time, map[string]any or []any.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

// RecordSet is an ordered set of equal-length columns.
type RecordSet struct {
	columns []Column
	rows    int
}

// New builds a RecordSet, rejecting columns of differing lengths.
func New(columns ...Column) (*RecordSet, error) {
	rows := 0
	for i, c := range columns {
		if i == 0 {
			rows = len(c.Values)
			continue
		}
		if len(c.Values) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, len(c.Values), rows)
		}
	}
	return &RecordSet{columns: columns, rows: rows}, nil
}

// MustNew is New for callers that construct columns of equal length by
// construction; it panics otherwise.
func MustNew(columns ...Column) *RecordSet {
	rs, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return rs
}

// Len returns the row count.
func (rs *RecordSet) Len() int { return rs.rows }

// Width returns the column count.
func (rs *RecordSet) Width() int { return len(rs.columns) }

// Columns returns the columns in order. The slice is a copy; cell vectors are shared.
func (rs *RecordSet) Columns() []Column {
	out := make([]Column, len(rs.columns))
	copy(out, rs.columns)
	return out
}

// Index returns the position of the named column, or -1.
func (rs *RecordSet) Index(name string) int {
	for i, c := range rs.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (rs *RecordSet) Column(name string) (Column, bool) {
	if i := rs.Index(name); i >= 0 {
		return rs.columns[i], true
	}
	return Column{}, false
}

func (rs *RecordSet) Names() []string {
	names := make([]string, len(rs.columns))
	for i, c := range rs.columns {
		names[i] = c.Name
	}
	return names
}

// Schema is recomputed from the current columns on every call.
func (rs *RecordSet) Schema() Schema {
	s := make(Schema, len(rs.columns))
	for i, c := range rs.columns {
		s[i] = Field{Name: c.Name, Type: c.Type}
	}
	return s
}

// Row returns row i keyed by column name.
func (rs *RecordSet) Row(i int) map[string]any {
	row := make(map[string]any, len(rs.columns))
	for _, c := range rs.columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Schema maps column names to types at one point in time.
type Schema []Field

func (s Schema) Lookup(name string) (Type, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Type, true
		}
	}
	return Type{}, false
}

// NestedColumns lists the record-typed columns.
func (s Schema) NestedColumns() []string {
	var out []string
	for _, f := range s {
		if f.Type.IsRecord() {
			out = append(out, f.Name)
		}
	}
	return out
}

// ListColumns lists the list-typed columns.
func (s Schema) ListColumns() []string {
	var out []string
	for _, f := range s {
		if f.Type.IsList() {
			out = append(out, f.Name)
		}
	}
	return out
}

// IsFlat reports whether no record or list columns remain.
func (s Schema) IsFlat() bool {
	return len(s.NestedColumns()) == 0 && len(s.ListColumns()) == 0
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return strings.Join(parts, ", ")
}
