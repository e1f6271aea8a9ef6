package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Parse decodes strict JSON.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("unexpected data after top-level value")
	}
	return FromAny(raw)
}

// ParseJSON5 decodes JSON5 text (comments, trailing commas, unquoted keys,
// single-quoted strings).
func ParseJSON5(data []byte) (Value, error) {
	var raw any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	return FromAny(raw)
}

// MarshalPretty renders v with two-space indentation, sorted keys, no HTML
// escaping and a trailing newline.
func MarshalPretty(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
