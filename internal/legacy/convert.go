package legacy

import (
	"fmt"

	"github.com/schaermu/marsx/internal/jsonvalue"
	"github.com/schaermu/marsx/internal/sfc"
)

// TypeMismatchError reports a legacy field whose value does not fit its
// bucket.
type TypeMismatchError struct {
	Block string
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("legacy block %s: field %q must be %s, got %s", e.Block, e.Field, e.Want, e.Got)
	}
	return fmt.Sprintf("legacy field %q must be %s, got %s", e.Field, e.Want, e.Got)
}

// ToStructured converts a legacy record into a structured block. Script
// sections are keyed by the legacy field name. Converted blocks have no
// file path until they are written.
func ToStructured(r Record) (sfc.Block, error) {
	b := sfc.NewStructured(sfc.Path{
		Folder: r.Folder,
		Name:   r.Name,
		Kind:   r.Type,
		Ext:    sfc.Ext,
	})
	ident := b.Path.String()

	for field, value := range r.Fields {
		kind, lang := Classify(field)
		switch kind {
		case KindDelete:
		case KindJSON:
			if !value.IsObject() && !value.IsArray() {
				return sfc.Block{}, &TypeMismatchError{Block: ident, Field: field, Want: "an object or array", Got: value.Kind().String()}
			}
			b.JSONs[field] = value
		case KindScript:
			s, ok := value.AsString()
			if !ok {
				return sfc.Block{}, &TypeMismatchError{Block: ident, Field: field, Want: "a string", Got: value.Kind().String()}
			}
			b.Sources[field] = sfc.Source{
				Name:   sectionName(field),
				Source: s,
				Lang:   lang,
			}
		default:
			b.Metadata.Set(field, value)
		}
	}

	b.Metadata.Set(SchemaVersionKey, jsonvalue.IntValue(SchemaVersion))
	if r.App != nil {
		b.Metadata.Set(AppKey, appValue(*r.App))
	}
	return b, nil
}

// FromStructured flattens a structured block back into a legacy record.
// Section languages, props and line offsets are lost. The schema marker is
// dropped and the app descriptor is restored to Record.App.
func FromStructured(b sfc.Block) Record {
	r := Record{
		Folder: b.Path.Folder,
		Name:   b.Path.Name,
		Type:   b.Path.Kind,
		Fields: map[string]jsonvalue.Value{},
	}

	for key, value := range b.Metadata.Fields() {
		switch key {
		case SchemaVersionKey:
		case AppKey:
			if app, err := decodeApp(value); err == nil {
				r.App = &app
			} else {
				r.Fields[key] = value
			}
		default:
			r.Fields[key] = value
		}
	}
	for key, value := range b.JSONs {
		r.Fields[key] = value
	}
	for key, src := range b.Sources {
		r.Fields[key] = jsonvalue.StringValue(src.Source)
	}
	return r
}
