package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/pscparquet/internal/recordset"
)

func readSet(t *testing.T, lines ...string) *recordset.RecordSet {
	t.Helper()
	rs, err := recordset.ReadNDJSON(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return rs
}

func TestFlatten_UnnestsRecordsToFixedPoint(t *testing.T) {
	rs := readSet(t,
		`{"company_number":"01","data":{"kind":"individual","name_elements":{"forename":"Ada","surname":"L"},"address":{"locality":"London"}}}`,
	)
	depth := 0
	for _, f := range rs.Schema() {
		if d := f.Type.Depth(); d > depth {
			depth = d
		}
	}

	out, stats := FlattenWithStats(rs)

	assert.True(t, out.Schema().IsFlat())
	assert.Equal(t, []string{"company_number", "kind", "forename", "surname", "locality"}, out.Names())
	assert.Equal(t, map[string]any{
		"company_number": "01",
		"kind":           "individual",
		"forename":       "Ada",
		"surname":        "L",
		"locality":       "London",
	}, out.Row(0))
	assert.LessOrEqual(t, stats.UnnestPasses, depth+1)
	assert.Equal(t, 2, stats.UnnestPasses)
}

func TestFlatten_RowCountLaw(t *testing.T) {
	rs := readSet(t,
		`{"id":"a","natures":["x","y"]}`,
		`{"id":"b","natures":[]}`,
		`{"id":"c","natures":["x","y","z"]}`,
	)

	out := Flatten(rs)

	require.Equal(t, 5, out.Len())
	ids, _ := out.Column("id")
	assert.Equal(t, []any{"a", "a", "c", "c", "c"}, ids.Values)
	natures, _ := out.Column("natures")
	assert.Equal(t, []any{"x", "y", "x", "y", "z"}, natures.Values)
	assert.Equal(t, recordset.ScalarType(recordset.String), natures.Type)
}

func TestFlatten_SiblingListsCrossProduct(t *testing.T) {
	rs := readSet(t, `{"a":[1,2],"b":["p","q","r"]}`)

	out, stats := FlattenWithStats(rs)

	require.Equal(t, 6, out.Len())
	assert.Equal(t, []string{"a", "b"}, stats.Exploded)
	a, _ := out.Column("a")
	b, _ := out.Column("b")
	assert.Equal(t, []any{int64(1), int64(1), int64(1), int64(2), int64(2), int64(2)}, a.Values)
	assert.Equal(t, []any{"p", "q", "r", "p", "q", "r"}, b.Values)
}

func TestFlatten_NullListKeepsRow(t *testing.T) {
	rs := readSet(t,
		`{"id":"a","natures":["x"]}`,
		`{"id":"b"}`,
	)

	out := Flatten(rs)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, map[string]any{"id": "b", "natures": nil}, out.Row(1))
}

func TestFlatten_NameCollisionLaterWinsInPlace(t *testing.T) {
	rs := readSet(t, `{"kind":"outer","data":{"kind":"inner","etag":"e"}}`)

	out := Flatten(rs)

	assert.Equal(t, []string{"kind", "etag"}, out.Names())
	assert.Equal(t, map[string]any{"kind": "inner", "etag": "e"}, out.Row(0))
}

func TestFlatten_ListOfRecordsRunsAnotherCycle(t *testing.T) {
	rs := readSet(t, `{"id":"a","items":[{"x":1,"tags":["t1","t2"]},{"x":2,"tags":[]}]}`)

	out := Flatten(rs)

	assert.True(t, out.Schema().IsFlat())
	assert.Equal(t, []string{"id", "x", "tags"}, out.Names())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, map[string]any{"id": "a", "x": int64(1), "tags": "t2"}, out.Row(1))
}

func TestFlatten_Idempotent(t *testing.T) {
	rs := readSet(t,
		`{"id":"a","data":{"natures":["x","y"],"address":{"postcode":"N1"}}}`,
		`{"id":"b","data":{"natures":null}}`,
	)

	once := Flatten(rs)
	twice, stats := FlattenWithStats(once)

	assert.Equal(t, once.Names(), twice.Names())
	assert.Equal(t, once.Len(), twice.Len())
	for i := 0; i < once.Len(); i++ {
		assert.Equal(t, once.Row(i), twice.Row(i))
	}
	assert.Zero(t, stats.UnnestPasses)
	assert.Empty(t, stats.Exploded)
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	rs := readSet(t, `{"data":{"natures":["x","y"]}}`)
	before := rs.Schema().String()

	_ = Flatten(rs)

	assert.Equal(t, before, rs.Schema().String())
	assert.Equal(t, 1, rs.Len())
}
