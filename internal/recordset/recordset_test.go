package recordset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsRaggedColumns(t *testing.T) {
	_, err := New(
		Column{Name: "a", Type: ScalarType(Int64), Values: []any{int64(1), int64(2)}},
		Column{Name: "b", Type: ScalarType(String), Values: []any{"x"}},
	)
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	inner := RecordType(Field{Name: "x", Type: RecordType(Field{Name: "y", Type: ScalarType(String)})})
	rs := MustNew(
		Column{Name: "id", Type: ScalarType(String), Values: []any{"1"}},
		Column{Name: "data", Type: inner, Values: []any{nil}},
		Column{Name: "tags", Type: ListOf(ScalarType(String)), Values: []any{nil}},
	)

	s := rs.Schema()
	assert.Equal(t, []string{"data"}, s.NestedColumns())
	assert.Equal(t, []string{"tags"}, s.ListColumns())
	assert.False(t, s.IsFlat())
	assert.Equal(t, 2, inner.Depth())
	assert.Equal(t, "id: string, data: record{x: record{y: string}}, tags: list<string>", s.String())

	typ, ok := s.Lookup("tags")
	require.True(t, ok)
	assert.Equal(t, ScalarType(String), *typ.Elem)

	assert.Equal(t, map[string]any{"id": "1", "data": nil, "tags": nil}, rs.Row(0))
}

func TestParseScalar(t *testing.T) {
	s, err := ParseScalar(" Int16 ")
	require.NoError(t, err)
	assert.Equal(t, Int16, s)
	assert.True(t, s.IsInteger())

	_, err = ParseScalar("uint9")
	assert.Error(t, err)
}
