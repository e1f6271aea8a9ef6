package sfc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

// Source is one source-code section of a structured block.
type Source struct {
	Name       string            `json:"name,omitempty"`
	Source     string            `json:"source"`
	Lang       string            `json:"lang,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
	LineOffset int               `json:"lineOffset,omitempty"`

	// File is the slash-separated path, relative to the blocks directory, of
	// the file holding only this section. It is empty when the section lives
	// in the block file itself.
	File string `json:"-"`
}

// Block is a parsed block file. Structured blocks (Path.Ext == "mars") carry
// Metadata, JSONs and Sources and a nil RawContent. Opaque blocks carry only
// RawContent.
type Block struct {
	Path       Path
	Metadata   jsonvalue.Value
	JSONs      map[string]jsonvalue.Value
	Sources    map[string]Source
	RawContent []byte
}

// NewStructured returns an empty structured block.
func NewStructured(p Path) Block {
	return Block{
		Path:     p,
		Metadata: jsonvalue.EmptyObject(),
		JSONs:    map[string]jsonvalue.Value{},
		Sources:  map[string]Source{},
	}
}

// NewOpaque returns a block holding raw bytes.
func NewOpaque(p Path, raw []byte) Block {
	if raw == nil {
		raw = []byte{}
	}
	return Block{
		Path:       p,
		Metadata:   jsonvalue.EmptyObject(),
		JSONs:      map[string]jsonvalue.Value{},
		Sources:    map[string]Source{},
		RawContent: raw,
	}
}

// IsStructured reports whether the block is a structured block file.
func (b Block) IsStructured() bool {
	return b.Path.Ext == Ext
}

// Validate checks the structured/opaque invariant and section id uniqueness.
func (b Block) Validate() error {
	violation := func(format string, args ...any) error {
		return &ContractViolationError{Path: b.Path.String(), Reason: fmt.Sprintf(format, args...)}
	}

	if !b.IsStructured() {
		if b.RawContent == nil {
			return violation("opaque block has no raw content")
		}
		if b.Metadata.Len() > 0 || len(b.JSONs) > 0 || len(b.Sources) > 0 {
			return violation("opaque block carries sections")
		}
		return nil
	}

	if b.RawContent != nil {
		return violation("structured block carries raw content")
	}
	if !b.Metadata.IsNull() && !b.Metadata.IsObject() {
		return violation("metadata is a %s, want object", b.Metadata.Kind())
	}
	if _, ok := b.JSONs[MetadataSectionID]; ok {
		return violation("json section id %q is reserved", MetadataSectionID)
	}
	for id := range b.Sources {
		if id == MetadataSectionID {
			return violation("source section id %q is reserved", MetadataSectionID)
		}
		if _, ok := b.JSONs[id]; ok {
			return violation("section id %q is used by both a json and a source section", id)
		}
	}
	return nil
}

// Clone returns a deep copy of the section maps and raw content.
func (b Block) Clone() Block {
	out := b
	if b.JSONs != nil {
		out.JSONs = make(map[string]jsonvalue.Value, len(b.JSONs))
		for k, v := range b.JSONs {
			out.JSONs[k] = v
		}
	}
	if b.Sources != nil {
		out.Sources = make(map[string]Source, len(b.Sources))
		for k, s := range b.Sources {
			if s.Props != nil {
				props := make(map[string]string, len(s.Props))
				for pk, pv := range s.Props {
					props[pk] = pv
				}
				s.Props = props
			}
			out.Sources[k] = s
		}
	}
	if b.Metadata.IsObject() {
		out.Metadata = jsonvalue.ObjectValue(b.Metadata.Fields())
	}
	if b.RawContent != nil {
		out.RawContent = append([]byte{}, b.RawContent...)
	}
	return out
}

type blockJSON struct {
	Path       Path                       `json:"path"`
	Metadata   jsonvalue.Value            `json:"metadata"`
	JSONs      map[string]jsonvalue.Value `json:"jsons"`
	Sources    map[string]Source          `json:"sources"`
	RawContent json.RawMessage            `json:"rawContent"`
}

// bufferJSON is the {"type":"Buffer","data":[...]} shape Node uses for bytes.
type bufferJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// MarshalJSON renders the block in its wire shape. Raw content is encoded as
// a Buffer object, or null for structured blocks.
func (b Block) MarshalJSON() ([]byte, error) {
	out := blockJSON{
		Path:       b.Path,
		Metadata:   b.Metadata,
		JSONs:      b.JSONs,
		Sources:    b.Sources,
		RawContent: json.RawMessage("null"),
	}
	if out.Metadata.IsNull() {
		out.Metadata = jsonvalue.EmptyObject()
	}
	if out.JSONs == nil {
		out.JSONs = map[string]jsonvalue.Value{}
	}
	if out.Sources == nil {
		out.Sources = map[string]Source{}
	}
	if b.RawContent != nil {
		buf := bufferJSON{Type: "Buffer", Data: make([]int, len(b.RawContent))}
		for i, c := range b.RawContent {
			buf.Data[i] = int(c)
		}
		raw, err := json.Marshal(buf)
		if err != nil {
			return nil, err
		}
		out.RawContent = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts raw content as null, a base64 string or a Buffer
// object. Missing sections decode as empty.
func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	raw, err := decodeRawContent(in.RawContent)
	if err != nil {
		return fmt.Errorf("block %s: rawContent: %w", in.Path.String(), err)
	}

	*b = Block{
		Path:       in.Path,
		Metadata:   in.Metadata,
		JSONs:      in.JSONs,
		Sources:    in.Sources,
		RawContent: raw,
	}
	if b.Metadata.IsNull() {
		b.Metadata = jsonvalue.EmptyObject()
	}
	if b.JSONs == nil {
		b.JSONs = map[string]jsonvalue.Value{}
	}
	if b.Sources == nil {
		b.Sources = map[string]Source{}
	}
	return nil
}

func decodeRawContent(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if decoded == nil {
			decoded = []byte{}
		}
		return decoded, nil
	case '{':
		var buf bufferJSON
		if err := json.Unmarshal(trimmed, &buf); err != nil {
			return nil, err
		}
		if buf.Type != "" && buf.Type != "Buffer" {
			return nil, fmt.Errorf("unsupported object type %q", buf.Type)
		}
		out := make([]byte, len(buf.Data))
		for i, c := range buf.Data {
			if c < 0 || c > 255 {
				return nil, fmt.Errorf("byte %d out of range: %d", i, c)
			}
			out[i] = byte(c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %.20s", trimmed)
	}
}
