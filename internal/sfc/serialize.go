package sfc

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

// File is a serialized artifact: a slash-separated path relative to the
// blocks directory and its bytes.
type File struct {
	Path    string
	Content []byte
}

// Serialize renders b as a single file using DefaultOptions.
func Serialize(b Block) (File, error) {
	return SerializeWithOptions(b, DefaultOptions)
}

// SerializeWithOptions renders b as a single file. Equal blocks always
// produce identical bytes. It panics with a *ContractViolationError if b
// mixes raw content with structured sections.
func SerializeWithOptions(b Block, opts Options) (File, error) {
	mustValidate(b)

	if !b.IsStructured() {
		return File{Path: b.Path.String(), Content: append([]byte{}, b.RawContent...)}, nil
	}

	var out strings.Builder
	metadata := b.Metadata
	if metadata.IsNull() {
		metadata = jsonvalue.EmptyObject()
	}
	if err := writeJSONSection(&out, MetadataSectionID, metadata); err != nil {
		return File{}, fmt.Errorf("serializing %s: %w", b.Path, err)
	}
	for _, id := range sortedKeys(b.JSONs) {
		if err := writeJSONSection(&out, id, b.JSONs[id]); err != nil {
			return File{}, fmt.Errorf("serializing %s: %w", b.Path, err)
		}
	}
	for _, id := range sortedKeys(b.Sources) {
		src := b.Sources[id]
		if !opts.SaveEmptySources && strings.TrimSpace(src.Source) == "" {
			continue
		}
		writeSourceSection(&out, id, src)
	}

	return File{Path: b.Path.String(), Content: []byte(out.String())}, nil
}

func mustValidate(b Block) {
	if err := b.Validate(); err != nil {
		panic(err)
	}
}

func writeJSONSection(out *strings.Builder, id string, v jsonvalue.Value) error {
	pretty, err := jsonvalue.MarshalPretty(v)
	if err != nil {
		return fmt.Errorf("section %q: %w", id, err)
	}
	fmt.Fprintf(out, "<json id=\"%s\">\n", EscapeAttr(id))
	out.WriteString(EscapeCloseTag(string(pretty), "json"))
	out.WriteString("</json>\n\n")
	return nil
}

func writeSourceSection(out *strings.Builder, id string, src Source) {
	tag := TagForLang(src.Lang)
	fmt.Fprintf(out, "<%s id=\"%s\"", tag, EscapeAttr(id))
	if src.Lang != "" {
		fmt.Fprintf(out, " lang=\"%s\"", EscapeAttr(src.Lang))
	}
	props := make(map[string]string, len(src.Props))
	for k, v := range src.Props {
		if k != "id" && k != "lang" {
			props[k] = v
		}
	}
	out.WriteString(StableAttrs(props))
	out.WriteString(">\n")
	out.WriteString(EscapeCloseTag(src.Source, tag))
	fmt.Fprintf(out, "\n</%s>\n\n", tag)
}

// SerializeSections renders b in the one-file-per-section layout: a
// directory named "{Name}.{Kind}" holding metadata.json5, one
// "{id}.json5" per json section and one "{id}.{lang}" per source section.
// Opaque blocks render exactly as with Serialize.
func SerializeSections(b Block, opts Options) ([]File, error) {
	mustValidate(b)

	if !b.IsStructured() {
		f, err := SerializeWithOptions(b, opts)
		if err != nil {
			return nil, err
		}
		return []File{f}, nil
	}

	dir := SectionDir(b.Path)
	metadata := b.Metadata
	if metadata.IsNull() {
		metadata = jsonvalue.EmptyObject()
	}

	pretty, err := jsonvalue.MarshalPretty(metadata)
	if err != nil {
		return nil, fmt.Errorf("serializing %s: metadata: %w", b.Path, err)
	}
	files := []File{{Path: path.Join(dir, MetadataSectionID+".json5"), Content: pretty}}

	for _, id := range sortedKeys(b.JSONs) {
		pretty, err := jsonvalue.MarshalPretty(b.JSONs[id])
		if err != nil {
			return nil, fmt.Errorf("serializing %s: section %q: %w", b.Path, id, err)
		}
		files = append(files, File{Path: path.Join(dir, id+".json5"), Content: pretty})
	}
	for _, id := range sortedKeys(b.Sources) {
		src := b.Sources[id]
		if !opts.SaveEmptySources && strings.TrimSpace(src.Source) == "" {
			continue
		}
		ext, err := sectionFileExt(src.Lang)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: source %q: %w", b.Path, id, err)
		}
		files = append(files, File{
			Path:    path.Join(dir, id+"."+ext),
			Content: []byte(src.Source),
		})
	}
	return files, nil
}

// SectionDir returns the directory a block is written to in the
// one-file-per-section layout.
func SectionDir(p Path) string {
	return path.Join(p.Folder, p.Name+"."+p.Kind)
}

// sectionFileExt maps a source lang to its file extension. The extensions
// of json sections and of lang-less sources cannot name a source lang.
func sectionFileExt(lang string) (string, error) {
	switch lang {
	case "":
		return "txt", nil
	case "json", "json5", "txt":
		return "", fmt.Errorf("lang %q cannot be stored as a section file", lang)
	}
	return lang, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
