package sfc

import (
	"path"
	"sort"
	"strings"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

// ParseSections reads a block stored in the one-file-per-section layout.
// dir is the block directory ("Blog/Post.page"); files are its entries,
// named by base name. Problems are aggregated into a *ParseError like Parse.
func ParseSections(dir string, files []File, opts Options) (Block, error) {
	blockPath := dir + "." + Ext
	p, err := ParsePath(blockPath)
	if err != nil {
		return Block{}, err
	}

	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	b := NewStructured(p)
	seen := map[string]bool{}
	var diags []Diagnostic
	hasMetadata := false

	for _, f := range sorted {
		name := path.Base(f.Path)
		id, ext := splitExt(name)
		if ext == "" || strings.HasPrefix(name, ".") {
			diags = append(diags, Diagnostic{Kind: MissingID, Message: "section file " + name + " has no {id}.{ext} name"})
			continue
		}
		if seen[id] {
			diags = append(diags, Diagnostic{Kind: DuplicateID, SectionID: id, Message: "section file " + name + " reuses an id"})
			continue
		}
		seen[id] = true

		if ext == "json5" || ext == "json" {
			v, err := jsonvalue.ParseJSON5(f.Content)
			if err != nil {
				diags = append(diags, Diagnostic{Kind: InvalidJSON, SectionID: id, Message: err.Error()})
				continue
			}
			if id == MetadataSectionID {
				if !v.IsObject() {
					diags = append(diags, Diagnostic{Kind: InvalidJSON, SectionID: id, Message: "metadata must be an object, got " + v.Kind().String()})
					continue
				}
				hasMetadata = true
				b.Metadata = v
				continue
			}
			b.JSONs[id] = v
			continue
		}

		text := string(f.Content)
		if !opts.SaveEmptySources && strings.TrimSpace(text) == "" {
			continue
		}
		lang := ext
		if ext == "txt" {
			lang = ""
		}
		b.Sources[id] = Source{Name: id, Source: text, Lang: lang, File: path.Join(dir, name)}
	}

	if !hasMetadata && len(diags) == 0 {
		diags = append(diags, Diagnostic{Kind: MissingID, SectionID: MetadataSectionID, Message: "section directory has no metadata.json5"})
	}
	if len(diags) > 0 {
		return Block{}, &ParseError{Path: blockPath, Diagnostics: diags}
	}
	return b, nil
}
