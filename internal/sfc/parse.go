package sfc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

// Options tunes parsing and serialization.
type Options struct {
	// SaveEmptySources keeps source sections whose text is empty or
	// whitespace-only.
	SaveEmptySources bool
}

// DefaultOptions keeps empty sections, so an intentionally empty section
// stays distinguishable from a missing one.
var DefaultOptions = Options{SaveEmptySources: true}

// Parse reads a block file. Files whose extension is not Ext come back as
// opaque blocks wrapping content unchanged. Every problem found in a
// structured file is collected into a single *ParseError.
func Parse(filePath string, content []byte) (Block, error) {
	return ParseWithOptions(filePath, content, DefaultOptions)
}

// ParseWithOptions is Parse with explicit options.
func ParseWithOptions(filePath string, content []byte, opts Options) (Block, error) {
	p, err := ParsePath(filePath)
	if err != nil {
		return Block{}, err
	}
	if p.Ext != Ext {
		return NewOpaque(p, append([]byte{}, content...)), nil
	}

	ps := &sectionParser{
		block: NewStructured(p),
		seen:  map[string]bool{},
		opts:  opts,
	}
	ps.run(content)
	if len(ps.diags) > 0 {
		return Block{}, &ParseError{Path: filePath, Diagnostics: ps.diags}
	}
	return ps.block, nil
}

type sectionParser struct {
	block Block
	seen  map[string]bool
	diags []Diagnostic
	opts  Options
}

type element struct {
	tag     string
	attrs   map[string]string
	content []byte
	line    int
}

func (ps *sectionParser) addDiag(kind DiagnosticKind, id string, line int, format string, args ...any) {
	ps.diags = append(ps.diags, Diagnostic{
		Kind:      kind,
		SectionID: id,
		Line:      line,
		Message:   fmt.Sprintf(format, args...),
	})
}

// run walks the top-level elements of input. The tokenizer only reads start
// tags; element content is located by scanning for the matching close tag so
// that section bodies are never interpreted as markup.
func (ps *sectionParser) run(input []byte) {
	pos := 0
	for pos < len(input) {
		next, ok := ps.scan(input, pos)
		if !ok {
			return
		}
		pos = next
	}
}

// scan tokenizes input from pos until it has consumed one complete element,
// returning the offset just past it. ok is false once input is exhausted.
func (ps *sectionParser) scan(input []byte, pos int) (next int, ok bool) {
	z := html.NewTokenizer(bytes.NewReader(input[pos:]))
	offset := pos
	for {
		tt := z.Next()
		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				ps.addDiag(MalformedMarkup, "", lineAt(input, start), "%v", err)
			}
			return len(input), false

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			el := element{
				tag:   string(name),
				attrs: map[string]string{},
				line:  lineAt(input, start),
			}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				el.attrs[string(k)] = string(v)
			}

			closeStart, closeEnd, found := findCloseTag(input, offset, el.tag)
			if !found {
				ps.addDiag(MalformedMarkup, el.attrs["id"], el.line, "unterminated <%s> element", el.tag)
				return len(input), false
			}
			el.content = input[offset:closeStart]
			ps.element(el)
			return closeEnd, true

		case html.EndTagToken:
			name, _ := z.TagName()
			ps.addDiag(MalformedMarkup, "", lineAt(input, start), "unexpected </%s>", name)
		}
		// Text between sections, comments, doctypes and self-closing
		// elements carry no section content.
	}
}

func (ps *sectionParser) element(el element) {
	// Only elements with a single non-empty text child are sections.
	if len(el.content) == 0 {
		return
	}

	id, hasID := el.attrs["id"]
	if !hasID || id == "" {
		ps.addDiag(MissingID, "", el.line, "<%s> section has no id attribute", el.tag)
		return
	}
	if ps.seen[id] {
		ps.addDiag(DuplicateID, id, el.line, "section id %q is already defined", id)
		return
	}
	ps.seen[id] = true

	if el.tag == "json" {
		text := UnescapeCloseTag(string(el.content), el.tag)
		v, err := jsonvalue.ParseJSON5([]byte(text))
		if err != nil {
			ps.addDiag(InvalidJSON, id, el.line, "%v", err)
			return
		}
		if id == MetadataSectionID {
			if !v.IsObject() {
				ps.addDiag(InvalidJSON, id, el.line, "metadata must be an object, got %s", v.Kind())
				return
			}
			ps.block.Metadata = v
			return
		}
		ps.block.JSONs[id] = v
		return
	}

	text := UnescapeCloseTag(trimSectionNewlines(string(el.content)), el.tag)
	if !ps.opts.SaveEmptySources && strings.TrimSpace(text) == "" {
		return
	}

	var props map[string]string
	for k, v := range el.attrs {
		if k == "id" || k == "lang" {
			continue
		}
		if props == nil {
			props = map[string]string{}
		}
		props[k] = v
	}
	ps.block.Sources[id] = Source{
		Name:       id,
		Source:     text,
		Lang:       el.attrs["lang"],
		Props:      props,
		LineOffset: el.line,
	}
}

// findCloseTag locates the first "</tag" (case-insensitive) at or after from
// that is followed by a tag-name terminator, and returns the offsets of its
// "<" and of the byte after its ">".
func findCloseTag(input []byte, from int, tag string) (start, end int, ok bool) {
	for i := from; i < len(input); {
		j := bytes.Index(input[i:], []byte("</"))
		if j < 0 {
			return 0, 0, false
		}
		j += i
		nameEnd := j + 2 + len(tag)
		if nameEnd < len(input) && strings.EqualFold(string(input[j+2:nameEnd]), tag) && isTagNameEnd(input[nameEnd]) {
			gt := bytes.IndexByte(input[nameEnd:], '>')
			if gt < 0 {
				return 0, 0, false
			}
			return j, nameEnd + gt + 1, true
		}
		i = j + 2
	}
	return 0, 0, false
}

// trimSectionNewlines drops the newline the serializer places after the
// opening tag and the one before the closing tag.
func trimSectionNewlines(s string) string {
	switch {
	case strings.HasPrefix(s, "\r\n"):
		s = s[2:]
	case strings.HasPrefix(s, "\n"):
		s = s[1:]
	}
	switch {
	case strings.HasSuffix(s, "\r\n"):
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "\n"):
		s = s[:len(s)-1]
	}
	return s
}

func lineAt(input []byte, offset int) int {
	if offset > len(input) {
		offset = len(input)
	}
	return bytes.Count(input[:offset], []byte("\n")) + 1
}
