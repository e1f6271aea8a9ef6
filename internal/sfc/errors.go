package sfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath matches every InvalidPathError.
var ErrInvalidPath = errors.New("invalid block file path")

// InvalidPathError is returned when a file path does not have the
// {Name}.{Kind}.{Ext} shape.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid block file path %q: expected {name}.{kind}.{ext}", e.Path)
}

func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// DiagnosticKind classifies a problem found while parsing a block file.
type DiagnosticKind string

const (
	MissingID       DiagnosticKind = "missing-id"
	DuplicateID     DiagnosticKind = "duplicate-id"
	InvalidJSON     DiagnosticKind = "invalid-json"
	MalformedMarkup DiagnosticKind = "malformed-markup"
)

// Diagnostic is a single parse problem. Line is 1-based; zero means unknown.
type Diagnostic struct {
	Kind      DiagnosticKind
	SectionID string
	Line      int
	Message   string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", d.Line)
	}
	b.WriteString(string(d.Kind))
	if d.SectionID != "" {
		fmt.Fprintf(&b, " (section %q)", d.SectionID)
	}
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	return b.String()
}

// ParseError aggregates every diagnostic found in one block file.
type ParseError struct {
	Path        string
	Diagnostics []Diagnostic
}

func (e *ParseError) Error() string {
	parts := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		parts[i] = d.String()
	}
	return fmt.Sprintf("parsing %s failed with %d error(s): %s", e.Path, len(e.Diagnostics), strings.Join(parts, "; "))
}

// Has reports whether any diagnostic is of the given kind.
func (e *ParseError) Has(kind DiagnosticKind) bool {
	for _, d := range e.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// ContractViolationError reports a block that breaks the structured/opaque
// invariant. Serialize panics with it; Validate returns it.
type ContractViolationError struct {
	Path   string
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("block %s violates the block contract: %s", e.Path, e.Reason)
}
