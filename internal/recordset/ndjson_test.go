package recordset

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNDJSON_SchemaUnionKeepsFirstSeenOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"company_number":"01","data":{"kind":"individual","name":"A"}}`,
		``,
		`{"data":{"name":"B","ceased_on":"2024-01-02"},"company_number":"02","extra":true}`,
	}, "\n")

	rs, err := ReadNDJSON(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, []string{"company_number", "data", "extra"}, rs.Names())

	data, ok := rs.Column("data")
	require.True(t, ok)
	require.True(t, data.Type.IsRecord())
	var fields []string
	for _, f := range data.Type.Fields {
		fields = append(fields, f.Name)
	}
	assert.Equal(t, []string{"kind", "name", "ceased_on"}, fields)

	extra, _ := rs.Column("extra")
	assert.Equal(t, []any{nil, true}, extra.Values)
	assert.Equal(t, Bool, extra.Type.Scalar)
}

func TestReadNDJSON_NumberInference(t *testing.T) {
	rs, err := ReadNDJSON(strings.NewReader("{\"a\":1,\"b\":1}\n{\"a\":2,\"b\":2.5}\n"))
	require.NoError(t, err)

	a, _ := rs.Column("a")
	assert.Equal(t, ScalarType(Int64), a.Type)
	assert.Equal(t, []any{int64(1), int64(2)}, a.Values)

	b, _ := rs.Column("b")
	assert.Equal(t, ScalarType(Float64), b.Type)
	assert.Equal(t, []any{float64(1), 2.5}, b.Values)
}

func TestReadNDJSON_MixedKindsBecomeString(t *testing.T) {
	rs, err := ReadNDJSON(strings.NewReader("{\"v\":\"x\"}\n{\"v\":{\"k\":1}}\n{\"v\":7}\n"))
	require.NoError(t, err)

	v, _ := rs.Column("v")
	assert.Equal(t, ScalarType(String), v.Type)
	assert.Equal(t, []any{"x", `{"k":1}`, "7"}, v.Values)
}

func TestReadNDJSON_Lists(t *testing.T) {
	rs, err := ReadNDJSON(strings.NewReader(`{"natures":["a","b"],"empty":[],"items":[{"x":1}]}`))
	require.NoError(t, err)

	natures, _ := rs.Column("natures")
	assert.Equal(t, ListOf(ScalarType(String)), natures.Type)
	assert.Equal(t, []any{"a", "b"}, natures.Values[0])

	empty, _ := rs.Column("empty")
	assert.Equal(t, ListOf(ScalarType(Null)), empty.Type)

	items, _ := rs.Column("items")
	require.True(t, items.Type.IsList())
	assert.True(t, items.Type.Elem.IsRecord())
	assert.Equal(t, 1, items.Type.Depth())
}

func TestReadNDJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"malformed", "{\"a\":1}\n{\"a\":", 2},
		{"not an object", "{\"a\":1}\n\n[1,2]", 3},
		{"trailing data", `{"a":1} {"a":2}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadNDJSON(strings.NewReader(tt.input))
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestReadNDJSON_Empty(t *testing.T) {
	rs, err := ReadNDJSON(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, 0, rs.Width())
}
