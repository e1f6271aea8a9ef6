package legacy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/schaermu/marsx/internal/jsonvalue"
)

// App identifies the application a legacy record belongs to.
type App struct {
	Name  string `json:"name"`
	AppID string `json:"appId"`
}

// Slug returns a directory-safe form of the app name: lower case, with every
// run of other characters collapsed to "-".
func (a App) Slug() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(a.Name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return a.AppID
	}
	return slug
}

// Record is a flat legacy block: the identity fields plus an open set of
// additional fields.
type Record struct {
	Folder string
	Name   string
	Type   string
	App    *App
	Fields map[string]jsonvalue.Value
}

// MarshalJSON renders the record flat, the way legacy exports store it.
func (r Record) MarshalJSON() ([]byte, error) {
	obj := jsonvalue.ObjectValue(r.Fields)
	obj.Set("Folder", jsonvalue.StringValue(r.Folder))
	obj.Set("Name", jsonvalue.StringValue(r.Name))
	obj.Set("Type", jsonvalue.StringValue(r.Type))
	if r.App != nil {
		obj.Set(AppKey, appValue(*r.App))
	}
	return obj.MarshalJSON()
}

// UnmarshalJSON reads a flat record. Folder, Name and Type must be strings;
// Folder may be absent for top-level blocks.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := jsonvalue.Parse(data)
	if err != nil {
		return err
	}
	if !v.IsObject() {
		return fmt.Errorf("legacy record must be an object, got %s", v.Kind())
	}

	out := Record{Fields: map[string]jsonvalue.Value{}}
	for _, key := range v.Keys() {
		field, _ := v.Get(key)
		switch key {
		case "Folder", "Name", "Type":
			s, ok := field.AsString()
			if !ok && !(key == "Folder" && field.IsNull()) {
				return &TypeMismatchError{Field: key, Want: "string", Got: field.Kind().String()}
			}
			switch key {
			case "Folder":
				out.Folder = s
			case "Name":
				out.Name = s
			case "Type":
				out.Type = s
			}
		case AppKey:
			if field.IsNull() {
				continue
			}
			app, err := decodeApp(field)
			if err != nil {
				return err
			}
			out.App = &app
		default:
			out.Fields[key] = field
		}
	}

	if out.Name == "" || out.Type == "" {
		return fmt.Errorf("legacy record is missing Name or Type")
	}
	*r = out
	return nil
}

func appValue(a App) jsonvalue.Value {
	return jsonvalue.ObjectValue(map[string]jsonvalue.Value{
		"name":  jsonvalue.StringValue(a.Name),
		"appId": jsonvalue.StringValue(a.AppID),
	})
}

func decodeApp(v jsonvalue.Value) (App, error) {
	if !v.IsObject() {
		return App{}, &TypeMismatchError{Field: AppKey, Want: "object", Got: v.Kind().String()}
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return App{}, err
	}
	var app App
	if err := json.Unmarshal(raw, &app); err != nil {
		return App{}, fmt.Errorf("field %q: %w", AppKey, err)
	}
	return app, nil
}
