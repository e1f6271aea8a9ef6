package jsonvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	v := ObjectValue(map[string]Value{
		"zeta":  IntValue(1),
		"alpha": StringValue("<a&b>"),
		"mid":   ArrayValue(BoolValue(true), NullValue()),
	})

	got, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<a&b>","mid":[true,null],"zeta":1}`, string(got))

	pretty, err := MarshalPretty(v)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"alpha\": \"<a&b>\",\n  \"mid\": [\n    true,\n    null\n  ],\n  \"zeta\": 1\n}\n", string(pretty))
}

func TestMarshalPrettyIsDeterministic(t *testing.T) {
	src := []byte(`{"b": {"y": 1, "x": [3, 2, 1]}, "a": "s"}`)
	first, err := Parse(src)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := Parse(src)
		require.NoError(t, err)
		a, err := MarshalPretty(first)
		require.NoError(t, err)
		b, err := MarshalPretty(again)
		require.NoError(t, err)
		require.Equal(t, string(a), string(b))
	}
}

func TestParseJSON5(t *testing.T) {
	v, err := ParseJSON5([]byte(`
// leading comment
{
  title: 'x',
  count: 2,
  nested: {ok: true,},
  list: [1, 2,],
}`))
	require.NoError(t, err)
	require.True(t, v.IsObject())

	title, ok := v.Get("title")
	require.True(t, ok)
	s, _ := title.AsString()
	assert.Equal(t, "x", s)

	count, _ := v.Get("count")
	assert.True(t, Equal(count, IntValue(2)))

	list, _ := v.Get("list")
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, []string{"count", "list", "nested", "title"}, v.Keys())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", NullValue(), NullValue(), true},
		{"number literals", NumberValue("1"), NumberValue("1.0"), true},
		{"different numbers", NumberValue("1"), NumberValue("2"), false},
		{"kind mismatch", StringValue("1"), NumberValue("1"), false},
		{"objects", ObjectValue(map[string]Value{"a": IntValue(1)}), ObjectValue(map[string]Value{"a": IntValue(1)}), true},
		{"object extra key", ObjectValue(map[string]Value{"a": IntValue(1)}), EmptyObject(), false},
		{"arrays order", ArrayValue(IntValue(1), IntValue(2)), ArrayValue(IntValue(2), IntValue(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestSetPromotesNull(t *testing.T) {
	var v Value
	v.Set("a", IntValue(1))
	assert.True(t, v.IsObject())
	assert.Equal(t, []string{"a"}, v.Keys())

	v.Delete("a")
	assert.Equal(t, 0, v.Len())

	s := StringValue("x")
	assert.Panics(t, func() { s.Set("a", NullValue()) })
}

func TestFromAnyRejectsNaN(t *testing.T) {
	nan := 0.0
	_, err := FromAny(map[string]any{"x": nan / nan})
	require.Error(t, err)
}

func TestUnmarshalJSONRoundTrip(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"n": 12345678901234567890, "s": "é"}`), &v))

	n, _ := v.Get("n")
	lit, ok := n.AsNumber()
	require.True(t, ok)
	// Literals survive without float rounding.
	assert.Equal(t, json.Number("12345678901234567890"), lit)

	out, err := MarshalPretty(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), "12345678901234567890")
}
