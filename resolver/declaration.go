// Package resolver turns a type declaration and its attributes into the
// input of the composite identity engine.
//
// The resolver does not look at Go syntax. Front ends (the gen scanner,
// ParseImpl, configuration) build a Declaration; Resolve validates the seed
// attribute, enumerates generic slots in declaration order and decides how
// the emitted target is shaped.
package resolver

import "strings"

// SubjectKind describes what the declaration names.
type SubjectKind uint8

const (
	// SubjectNamed is a bare named type declared in the package.
	SubjectNamed SubjectKind = iota
	// SubjectExpr is an arbitrary type expression such as []T or map[K]V.
	SubjectExpr
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectNamed:
		return "named"
	case SubjectExpr:
		return "expr"
	default:
		return "unknown"
	}
}

// TypeParam is one declared generic parameter. Constraint is the source text
// of its constraint and may be empty.
type TypeParam struct {
	Name       string
	Constraint string
}

// Declaration is a front-end neutral description of an annotated type.
type Declaration struct {
	// Name is the type name for SubjectNamed, or the base name of the
	// generated accessor for SubjectExpr.
	Name    string
	Package string
	Subject SubjectKind
	// Expr is the type expression for SubjectExpr.
	Expr       string
	TypeParams []TypeParam
	// Attributes holds raw attribute text in source order.
	Attributes []string
	// Pos is a human-readable source position, e.g. "shapes.go:14".
	Pos string
}

// String renders Name[A, B].
func (d Declaration) String() string {
	if len(d.TypeParams) == 0 {
		return d.Name
	}
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteByte('[')
	for i, p := range d.TypeParams {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParamNames returns the type parameter names in declaration order.
func (d Declaration) ParamNames() []string {
	out := make([]string, len(d.TypeParams))
	for i, p := range d.TypeParams {
		out[i] = p.Name
	}
	return out
}

func (d Declaration) label() string {
	if d.Pos == "" {
		return d.String()
	}
	return d.Pos + ": " + d.String()
}
