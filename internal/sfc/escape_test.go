package sfc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeCloseTag(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		tag     string
		escaped string
	}{
		{"plain", `x = "</script>"`, "script", `x = "</ script>"`},
		{"upper case", `</SCRIPT >`, "script", `</ SCRIPT >`},
		{"already spaced", `</ script>`, "script", `</  script>`},
		{"other tag untouched", `</style>`, "script", `</style>`},
		{"prefix of longer tag", `</scripts>`, "script", `</scripts>`},
		{"end of input", `a</script`, "script", `a</ script`},
		{"json", `{"a": "</json>"}`, "json", `{"a": "</ json>"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeCloseTag(tt.in, tt.tag)
			assert.Equal(t, tt.escaped, got)
			assert.Equal(t, tt.in, UnescapeCloseTag(got, tt.tag))
		})
	}
}

func TestUnescapeLeavesUnescapedText(t *testing.T) {
	assert.Equal(t, "a </b> </script", UnescapeCloseTag("a </b> </script", "script"))
}

func TestTagForLang(t *testing.T) {
	for lang, want := range map[string]string{
		"ts":     "script",
		"tsx":    "script",
		"js":     "script",
		"jsx":    "script",
		"css":    "style",
		"scss":   "style",
		"less":   "style",
		"stylus": "style",
		"html":   "html",
		"pug":    "template",
		"text":   "text",
		"":       "text",
		"python": "text",
	} {
		assert.Equal(t, want, TagForLang(lang), "lang %q", lang)
	}
}

func TestStableAttrs(t *testing.T) {
	got := StableAttrs(map[string]string{
		"setup":  "",
		"scoped": "true",
		"alt":    `"quoted" & <tag>`,
	})
	assert.Equal(t, ` alt="&quot;quoted&quot; &amp; &lt;tag&gt;" scoped="true"`, got)
}
