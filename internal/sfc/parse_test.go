package sfc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

var blockCmp = cmp.Options{
	cmp.Comparer(jsonvalue.Equal),
	cmpopts.EquateEmpty(),
}

const postFile = `<json id="metadata">
{
  "title": "x"
}
</json>

<script id="BlockFunction" lang="ts">
export default 1;
</script>

`

func TestParseStructured(t *testing.T) {
	b, err := Parse("Blog/Post.page.mars", []byte(postFile))
	require.NoError(t, err)

	want := Block{
		Path:     Path{Folder: "Blog", Name: "Post", Kind: "page", Ext: "mars", FilePath: "Blog/Post.page.mars"},
		Metadata: jsonvalue.ObjectValue(map[string]jsonvalue.Value{"title": jsonvalue.StringValue("x")}),
		JSONs:    map[string]jsonvalue.Value{},
		Sources: map[string]Source{
			"BlockFunction": {Name: "BlockFunction", Source: "export default 1;", Lang: "ts", LineOffset: 7},
		},
	}
	if diff := cmp.Diff(want, b, blockCmp); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, b.IsStructured())
	assert.Nil(t, b.RawContent)
}

func TestSerializeReproducesFile(t *testing.T) {
	b, err := Parse("Blog/Post.page.mars", []byte(postFile))
	require.NoError(t, err)

	f, err := Serialize(b)
	require.NoError(t, err)
	assert.Equal(t, "Blog/Post.page.mars", f.Path)
	assert.Equal(t, postFile, string(f.Content))
}

func TestParseOpaque(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x00}
	b, err := Parse("assets/logo.image.png", raw)
	require.NoError(t, err)

	assert.False(t, b.IsStructured())
	assert.Equal(t, raw, b.RawContent)
	assert.Empty(t, b.Sources)
	assert.Empty(t, b.JSONs)

	f, err := Serialize(b)
	require.NoError(t, err)
	assert.Equal(t, raw, f.Content)
}

func TestParseInvalidPath(t *testing.T) {
	_, err := Parse("Blog/Post.mars", []byte(postFile))
	assert.True(t, errors.Is(err, ErrInvalidPath))
}

func TestParseAggregatesDiagnostics(t *testing.T) {
	input := `<json id="metadata">{}</json>
<script lang="ts">a</script>
<script id="x" lang="ts">b</script>
<script id="x" lang="ts">c</script>
<json id="cfg">{not json</json>
`
	_, err := Parse("Blog/Broken.page.mars", []byte(input))
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "Blog/Broken.page.mars", parseErr.Path)
	require.Len(t, parseErr.Diagnostics, 3)

	assert.Equal(t, MissingID, parseErr.Diagnostics[0].Kind)
	assert.Equal(t, 2, parseErr.Diagnostics[0].Line)

	assert.Equal(t, DuplicateID, parseErr.Diagnostics[1].Kind)
	assert.Equal(t, "x", parseErr.Diagnostics[1].SectionID)
	assert.Equal(t, 4, parseErr.Diagnostics[1].Line)

	assert.Equal(t, InvalidJSON, parseErr.Diagnostics[2].Kind)
	assert.Equal(t, "cfg", parseErr.Diagnostics[2].SectionID)
	assert.True(t, parseErr.Has(InvalidJSON))
	assert.Contains(t, err.Error(), "3 error(s)")
}

func TestParseUnterminatedSection(t *testing.T) {
	_, err := Parse("A.page.mars", []byte(`<script id="x" lang="ts">never closed`))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.True(t, parseErr.Has(MalformedMarkup))
}

func TestParseCRLF(t *testing.T) {
	input := "<json id=\"metadata\">\r\n{}\r\n</json>\r\n\r\n<script id=\"Main\" lang=\"ts\">\r\nfoo\r\nbar\r\n</script>\r\n"
	b, err := Parse("A.page.mars", []byte(input))
	require.NoError(t, err)
	assert.Equal(t, "foo\r\nbar", b.Sources["Main"].Source)
}

func TestParseIgnoresEmptyElementsAndComments(t *testing.T) {
	input := `<!-- <script id="hidden">x</script> -->
<json id="metadata">{a: 1, /* json5 */ b: 'two',}</json>
<template id="empty"></template>
<br/>
`
	b, err := Parse("A.page.mars", []byte(input))
	require.NoError(t, err)
	assert.Empty(t, b.Sources)
	assert.Equal(t, []string{"a", "b"}, b.Metadata.Keys())
}

func TestParseKeepsPropsAndAttributeEntities(t *testing.T) {
	input := `<style id="Styles" lang="scss" scoped="true" title="a &amp; b">
.x { color: red; }
</style>
`
	b, err := Parse("A.page.mars", []byte(input))
	require.NoError(t, err)

	src := b.Sources["Styles"]
	assert.Equal(t, ".x { color: red; }", src.Source)
	assert.Equal(t, map[string]string{"scoped": "true", "title": "a & b"}, src.Props)
	assert.Equal(t, 1, src.LineOffset)
}

func TestRoundTripStructured(t *testing.T) {
	b := NewStructured(Path{Folder: "Shop/Cart", Name: "Cart", Kind: "component", Ext: "mars", FilePath: "Shop/Cart/Cart.component.mars"})
	b.Metadata.Set("title", jsonvalue.StringValue("Cart"))
	b.Metadata.Set("tags", jsonvalue.ArrayValue(jsonvalue.StringValue("b"), jsonvalue.StringValue("a")))
	b.JSONs["Config"] = jsonvalue.ObjectValue(map[string]jsonvalue.Value{
		"markup": jsonvalue.StringValue("<json>not a section</json>"),
	})
	b.Sources["BlockFunction"] = Source{
		Name:   "BlockFunction",
		Source: "const tpl = \"<script>x</script>\";\nconst spaced = \"</ script>\";\nexport default tpl;",
		Lang:   "ts",
	}
	b.Sources["Styles"] = Source{Name: "Styles", Source: "a { b: c }", Lang: "css", Props: map[string]string{"scoped": "true"}}
	b.Sources["Notes"] = Source{Name: "Notes", Source: "   ", Lang: ""}

	first, err := Serialize(b)
	require.NoError(t, err)

	parsed, err := Parse(first.Path, first.Content)
	require.NoError(t, err)

	ignoreLines := cmpopts.IgnoreFields(Source{}, "LineOffset")
	if diff := cmp.Diff(b, parsed, blockCmp, ignoreLines); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	second, err := Serialize(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first.Content), string(second.Content))
}

func TestSerializeDropsEmptySourcesWhenDisabled(t *testing.T) {
	b := NewStructured(Path{Name: "A", Kind: "page", Ext: "mars"})
	b.Sources["Empty"] = Source{Name: "Empty", Source: " \n ", Lang: "ts"}
	b.Sources["Full"] = Source{Name: "Full", Source: "x", Lang: "ts"}

	f, err := SerializeWithOptions(b, Options{SaveEmptySources: false})
	require.NoError(t, err)
	assert.NotContains(t, string(f.Content), `id="Empty"`)
	assert.Contains(t, string(f.Content), `id="Full"`)

	kept, err := Serialize(b)
	require.NoError(t, err)
	parsed, err := Parse("A.page.mars", kept.Content)
	require.NoError(t, err)
	assert.Equal(t, " \n ", parsed.Sources["Empty"].Source)

	_, err = ParseWithOptions("A.page.mars", kept.Content, Options{})
	require.NoError(t, err)
}

func TestSerializeIsDeterministic(t *testing.T) {
	b := NewStructured(Path{Name: "A", Kind: "page", Ext: "mars"})
	for _, k := range []string{"z", "m", "a", "q"} {
		b.Metadata.Set(k, jsonvalue.StringValue(k))
		b.JSONs["j"+k] = jsonvalue.ObjectValue(map[string]jsonvalue.Value{k: jsonvalue.IntValue(1)})
		b.Sources["s"+k] = Source{Source: k, Lang: "js"}
	}

	first, err := Serialize(b)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Serialize(b.Clone())
		require.NoError(t, err)
		require.Equal(t, string(first.Content), string(again.Content))
	}
}

func TestSerializeContractViolation(t *testing.T) {
	b := NewStructured(Path{Name: "A", Kind: "page", Ext: "mars"})
	b.RawContent = []byte("oops")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		violation, ok := r.(*ContractViolationError)
		require.True(t, ok, "panic value %T", r)
		assert.Contains(t, violation.Reason, "raw content")
	}()
	_, _ = Serialize(b)
}

func TestValidateRejectsConflictingIDs(t *testing.T) {
	b := NewStructured(Path{Name: "A", Kind: "page", Ext: "mars"})
	b.JSONs["x"] = jsonvalue.EmptyObject()
	b.Sources["x"] = Source{Source: "y"}

	var violation *ContractViolationError
	require.ErrorAs(t, b.Validate(), &violation)

	opaque := NewOpaque(Path{Name: "A", Kind: "image", Ext: "png"}, nil)
	require.NoError(t, opaque.Validate())
	opaque.Sources["x"] = Source{Source: "y"}
	require.ErrorAs(t, opaque.Validate(), &violation)
}
