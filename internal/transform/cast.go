package transform

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/pscparquet/internal/recordset"
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// CastSpec declares target types for named columns.
type CastSpec struct {
	Ints  map[string]recordset.Scalar
	Dates []string
}

// DefaultCastSpec is the cast set applied to PSC snapshot records.
func DefaultCastSpec() CastSpec {
	return CastSpec{
		Ints: map[string]recordset.Scalar{
			"month": recordset.Int8,
			"year":  recordset.Int16,
		},
		Dates: []string{
			"notified_on",
			"ceased_on",
			"identity_verified_on",
			"appointment_verification_start_on",
			"appointment_verification_end_on",
			"appointment_verification_statement_date",
			"appointment_verification_statement_due_on",
		},
	}
}

// CastReport counts, per column, non-null cells that failed coercion and became null.
type CastReport map[string]int

// Cast applies spec to rs. Declared columns missing from rs are skipped.
func Cast(rs *recordset.RecordSet, spec CastSpec) *recordset.RecordSet {
	out, _ := CastWithReport(rs, spec)
	return out
}

// CastWithReport is Cast that also reports coercion failures. Cast columns
// keep their position; every other column passes through untouched.
func CastWithReport(rs *recordset.RecordSet, spec CastSpec) (*recordset.RecordSet, CastReport) {
	report := CastReport{}
	cols := rs.Columns()
	for i, c := range cols {
		width, ok := spec.Ints[c.Name]
		if !ok || !width.IsInteger() {
			continue
		}
		cols[i] = castColumn(c, recordset.ScalarType(width), func(v any) (any, bool) {
			return toInt(v, width)
		}, report)
	}
	for _, name := range spec.Dates {
		i := indexOf(cols, name)
		if i < 0 {
			continue
		}
		cols[i] = castColumn(cols[i], recordset.ScalarType(recordset.Date), toDate, report)
	}
	return recordset.MustNew(cols...), report
}

func castColumn(c recordset.Column, t recordset.Type, conv func(any) (any, bool), report CastReport) recordset.Column {
	values := make([]any, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		cv, ok := conv(v)
		if !ok {
			report[c.Name]++
			continue
		}
		values[i] = cv
	}
	return recordset.Column{Name: c.Name, Type: t, Values: values}
}

var intBounds = map[recordset.Scalar][2]int64{
	recordset.Int8:  {math.MinInt8, math.MaxInt8},
	recordset.Int16: {math.MinInt16, math.MaxInt16},
	recordset.Int32: {math.MinInt32, math.MaxInt32},
	recordset.Int64: {math.MinInt64, math.MaxInt64},
}

func toInt(v any, width recordset.Scalar) (any, bool) {
	var n int64
	switch x := v.(type) {
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	case bool:
		if x {
			n = 1
		}
	case float64:
		// Fractions truncate toward zero; only NaN, infinities and overflow fail.
		t := math.Trunc(x)
		if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
			return nil, false
		}
		n = int64(t)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, false
		}
		n = parsed
	default:
		return nil, false
	}

	bounds := intBounds[width]
	if n < bounds[0] || n > bounds[1] {
		return nil, false
	}
	switch width {
	case recordset.Int8:
		return int8(n), true
	case recordset.Int16:
		return int16(n), true
	case recordset.Int32:
		return int32(n), true
	default:
		return n, true
	}
}

func toDate(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := time.ParseInLocation(DateLayout, x, time.UTC)
		if err != nil {
			return nil, false
		}
		return t, true
	default:
		return nil, false
	}
}
