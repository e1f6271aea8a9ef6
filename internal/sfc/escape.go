package sfc

import (
	"sort"
	"strings"
)

var langTags = map[string]string{
	"html":   "html",
	"pug":    "template",
	"js":     "script",
	"jsx":    "script",
	"ts":     "script",
	"tsx":    "script",
	"css":    "style",
	"scss":   "style",
	"less":   "style",
	"sass":   "style",
	"stylus": "style",
	"text":   "text",
}

// TagForLang returns the element name a source section of the given
// language is written under. Unknown languages fall back to "text".
func TagForLang(lang string) string {
	if tag, ok := langTags[lang]; ok {
		return tag
	}
	return "text"
}

// EscapeCloseTag rewrites every closing-tag sequence for tag inside s so the
// parser cannot mistake it for the end of the section. "</script>" becomes
// "</ script>"; sequences that already carry spaces gain one more so that
// UnescapeCloseTag can always undo the rewrite exactly.
func EscapeCloseTag(s, tag string) string {
	return rewriteCloseTags(s, tag, 1)
}

// UnescapeCloseTag reverses EscapeCloseTag.
func UnescapeCloseTag(s, tag string) string {
	return rewriteCloseTags(s, tag, -1)
}

func rewriteCloseTags(s, tag string, delta int) string {
	if tag == "" || !strings.Contains(s, "</") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	i := 0
	for {
		j := strings.Index(s[i:], "</")
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		j += i
		k := j + 2
		for k < len(s) && s[k] == ' ' {
			k++
		}
		spaces := k - j - 2
		if (delta > 0 || spaces > 0) && matchesTagName(s[k:], tag) {
			b.WriteString(s[i:j])
			b.WriteString("</")
			b.WriteString(strings.Repeat(" ", spaces+delta))
			i = k
			continue
		}
		b.WriteString(s[i : j+2])
		i = j + 2
	}
}

// matchesTagName reports whether s starts with tag (ASCII case-insensitive)
// followed by the end of input or a character that ends a tag name.
func matchesTagName(s, tag string) bool {
	if len(s) < len(tag) || !strings.EqualFold(s[:len(tag)], tag) {
		return false
	}
	if len(s) == len(tag) {
		return true
	}
	return isTagNameEnd(s[len(tag)])
}

func isTagNameEnd(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '/', '>':
		return true
	}
	return false
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// EscapeAttr escapes a value for use inside a double-quoted attribute.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// StableAttrs renders props as ` key="value"` pairs in sorted key order,
// skipping empty values.
func StableAttrs(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(EscapeAttr(props[k]))
		b.WriteByte('"')
	}
	return b.String()
}
