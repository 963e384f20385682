package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/pscparquet/internal/recordset"
)

func stringColumn(name string, values ...any) recordset.Column {
	return recordset.Column{Name: name, Type: recordset.ScalarType(recordset.String), Values: values}
}

func TestCast_IntegersTolerateBadInput(t *testing.T) {
	rs := recordset.MustNew(stringColumn("month", "12", "abc", nil))

	out, report := CastWithReport(rs, CastSpec{Ints: map[string]recordset.Scalar{"month": recordset.Int8}})

	month, ok := out.Column("month")
	require.True(t, ok)
	assert.Equal(t, recordset.ScalarType(recordset.Int8), month.Type)
	assert.Equal(t, []any{int8(12), nil, nil}, month.Values)
	assert.Equal(t, CastReport{"month": 1}, report)

	// Floats truncate; a fractional string is still not an integer.
	floats := recordset.MustNew(recordset.Column{
		Name:   "month",
		Type:   recordset.ScalarType(recordset.Float64),
		Values: []any{12.5, -3.9, 300.0, math.NaN()},
	})
	out, report = CastWithReport(floats, CastSpec{Ints: map[string]recordset.Scalar{"month": recordset.Int8}})
	month, _ = out.Column("month")
	assert.Equal(t, []any{int8(12), int8(-3), nil, nil}, month.Values)
	assert.Equal(t, CastReport{"month": 2}, report)

	out = Cast(recordset.MustNew(stringColumn("month", "12.5")), CastSpec{Ints: map[string]recordset.Scalar{"month": recordset.Int8}})
	month, _ = out.Column("month")
	assert.Equal(t, []any{nil}, month.Values)
}

func TestCast_IntegerWidths(t *testing.T) {
	tests := []struct {
		name  string
		width recordset.Scalar
		in    any
		want  any
	}{
		{"int8 in range", recordset.Int8, int64(-128), int8(-128)},
		{"int8 overflow", recordset.Int8, "2024", nil},
		{"int16 year", recordset.Int16, "2024", int16(2024)},
		{"int32 from float", recordset.Int32, float64(7), int32(7)},
		{"fractional float truncates", recordset.Int32, 7.5, int32(7)},
		{"float overflow", recordset.Int8, 128.5, nil},
		{"int64 passthrough", recordset.Int64, int64(1 << 40), int64(1 << 40)},
		{"padded string", recordset.Int16, " 3 ", int16(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := recordset.MustNew(recordset.Column{Name: "n", Type: recordset.ScalarType(recordset.String), Values: []any{tt.in}})
			out := Cast(rs, CastSpec{Ints: map[string]recordset.Scalar{"n": tt.width}})
			n, _ := out.Column("n")
			assert.Equal(t, tt.want, n.Values[0])
		})
	}
}

func TestCast_Dates(t *testing.T) {
	rs := recordset.MustNew(stringColumn("notified_on", "2016-04-06", "06/04/2016", "2016-02-30", nil))

	out, report := CastWithReport(rs, CastSpec{Dates: []string{"notified_on"}})

	col, _ := out.Column("notified_on")
	assert.Equal(t, recordset.ScalarType(recordset.Date), col.Type)
	assert.Equal(t, []any{time.Date(2016, 4, 6, 0, 0, 0, 0, time.UTC), nil, nil, nil}, col.Values)
	assert.Equal(t, 2, report["notified_on"])
}

func TestCast_AbsentColumnsSkipped(t *testing.T) {
	rs := recordset.MustNew(stringColumn("name", "x"))

	out := Cast(rs, DefaultCastSpec())

	assert.Equal(t, []string{"name"}, out.Names())
	name, _ := out.Column("name")
	assert.Equal(t, recordset.ScalarType(recordset.String), name.Type)
	assert.Equal(t, []any{"x"}, name.Values)
}

func TestCast_PreservesColumnOrder(t *testing.T) {
	rs := recordset.MustNew(
		stringColumn("ceased_on", "2020-01-01"),
		stringColumn("name", "x"),
		stringColumn("year", "1990"),
		stringColumn("month", "7"),
	)

	out := Cast(rs, DefaultCastSpec())

	assert.Equal(t, []string{"ceased_on", "name", "year", "month"}, out.Names())
	assert.Equal(t, map[string]any{
		"ceased_on": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		"name":      "x",
		"year":      int16(1990),
		"month":     int8(7),
	}, out.Row(0))
}
