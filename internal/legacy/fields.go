// Package legacy converts between flat legacy block records and structured
// blocks.
package legacy

// FieldKind is the bucket a legacy field is routed to.
type FieldKind int

const (
	// KindMetadata is the default bucket for fields not listed in the table.
	KindMetadata FieldKind = iota
	// KindJSON fields must hold an object or array and become json sections.
	KindJSON
	// KindScript fields must hold a string and become source sections.
	KindScript
	// KindDelete fields are dropped: they repeat the path identity, are
	// audit data or hold a stale schema marker.
	KindDelete
)

func (k FieldKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindScript:
		return "script"
	case KindDelete:
		return "delete"
	default:
		return "metadata"
	}
}

// SchemaVersion is stamped into the metadata of every converted block.
const SchemaVersion = 3

// SchemaVersionKey is the metadata key holding SchemaVersion.
const SchemaVersionKey = "marsVersion"

// AppKey is the metadata key (and legacy field) holding the app descriptor.
const AppKey = "app"

type fieldRule struct {
	kind FieldKind
	lang string
	// name is the canonical section name when it differs from the field.
	name string
}

var fieldTable = map[string]fieldRule{
	"DataArgs": {kind: KindJSON},
	"Page":     {kind: KindJSON},
	"pages":    {kind: KindJSON},
	"blocks":   {kind: KindJSON},
	"Config":   {kind: KindJSON},
	"langs":    {kind: KindJSON},

	"BlockFunction":           {kind: KindScript, lang: "ts"},
	"Html":                    {kind: KindScript, lang: "html"},
	"HTML":                    {kind: KindScript, lang: "html", name: "Html"},
	"Jsx":                     {kind: KindScript, lang: "tsx"},
	"JsxTranspiled":           {kind: KindScript, lang: "js"},
	"JsxTranspiledTranspiled": {kind: KindScript, lang: "js"},
	"JSX":                     {kind: KindScript, lang: "tsx", name: "Jsx"},
	"JSXTranspiled":           {kind: KindScript, lang: "js", name: "JsxTranspiled"},
	"DemoJsx":                 {kind: KindScript, lang: "tsx"},
	"DemoJsxTranspiled":       {kind: KindScript, lang: "js"},
	"Script":                  {kind: KindScript, lang: "ts"},
	"Css":                     {kind: KindScript, lang: "css"},
	"TestCode":                {kind: KindScript, lang: "ts"},
	"JestDefinition":          {kind: KindScript, lang: "ts"},
	"DataForScriptFunction":   {kind: KindScript, lang: "ts"},

	"Name":        {kind: KindDelete},
	"Type":        {kind: KindDelete},
	"Folder":      {kind: KindDelete},
	"app":         {kind: KindDelete},
	"Created":     {kind: KindDelete},
	"LastChanged": {kind: KindDelete},
	"createdAt":   {kind: KindDelete},
	"createdBy":   {kind: KindDelete},
	"updatedAt":   {kind: KindDelete},
	"updatedBy":   {kind: KindDelete},

	// Restamped with SchemaVersion on conversion.
	SchemaVersionKey: {kind: KindDelete},
}

// Classify returns the bucket and, for scripts, the language of a legacy
// field.
func Classify(field string) (kind FieldKind, lang string) {
	rule, ok := fieldTable[field]
	if !ok {
		return KindMetadata, ""
	}
	return rule.kind, rule.lang
}

// sectionName returns the canonical section name of a script field.
func sectionName(field string) string {
	if rule, ok := fieldTable[field]; ok && rule.name != "" {
		return rule.name
	}
	return field
}
