package gen

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/imports"

	"xdao.co/typeuuid/resolver"
)

// Header is the first line of every generated file.
const Header = "// Code generated by typeuuid. DO NOT EDIT."

// runtimeName is the identifier the runtime package is imported as.
const runtimeName = "typeuuid"

// Emit renders the generated source for res. The result is formatted by
// golang.org/x/tools/imports, which also drops the runtime import when
// nothing uses it.
func Emit(pkgName string, res []*resolver.Resolution, cfg Config) ([]byte, error) {
	cfg = cfg.WithDefaults()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\npackage %s\n\nimport %s %q\n", Header, pkgName, runtimeName, cfg.Runtime)
	for _, r := range res {
		buf.WriteByte('\n')
		if err := emitOne(&buf, r, cfg.Form); err != nil {
			return nil, err
		}
	}
	out, err := imports.Process(cfg.Output, buf.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, fmt.Errorf("gen: format %s: %w\n%s", cfg.Output, err, buf.Bytes())
	}
	return out, nil
}

// Shape is how one declaration is emitted.
type Shape uint8

const (
	// ShapeMethod is a TypeUUID method on the declared type.
	ShapeMethod Shape = iota
	// ShapeFunc is a package-level NameTypeUUID function.
	ShapeFunc
)

// ShapeOf decides the emitted shape of r under form.
//
// Type expressions always get a function. Named types always get a method
// when they are not generic. For generic named types FormAuto picks a method
// only when every parameter constraint mentions HasIdentity, since Of[P]
// does not compile otherwise; FormMethod reports such a declaration as an
// error.
func ShapeOf(r *resolver.Resolution, form Form) (Shape, error) {
	if !r.EchoTypeGenerics {
		if form == FormMethod {
			return 0, fmt.Errorf("gen: %s: type expressions cannot carry methods", r.Decl.Pos)
		}
		return ShapeFunc, nil
	}
	if !r.Generic() {
		return ShapeMethod, nil
	}
	if form == FormFunc {
		return ShapeFunc, nil
	}
	if s, ok := unboundSlot(r); ok {
		if form == FormMethod {
			return 0, fmt.Errorf("gen: %s: type parameter %s of %s is not constrained by %s.%s; a TypeUUID method cannot add the bound (use form: func or constrain %s)",
				r.Decl.Pos, s.Param, r.Decl.Name, runtimeName, resolver.BoundHasIdentity, s.Param)
		}
		return ShapeFunc, nil
	}
	return ShapeMethod, nil
}

// unboundSlot returns the first slot whose constraint does not mention
// HasIdentity.
func unboundSlot(r *resolver.Resolution) (resolver.Slot, bool) {
	for _, s := range r.Slots {
		if !strings.Contains(s.Constraint, resolver.BoundHasIdentity) {
			return s, true
		}
	}
	return resolver.Slot{}, false
}

func emitOne(buf *bytes.Buffer, r *resolver.Resolution, form Form) error {
	shape, err := ShapeOf(r, form)
	if err != nil {
		return err
	}
	d := r.Decl
	seedVar := SeedVar(r)
	fmt.Fprintf(buf, "// %s\n", r.Seed)
	fmt.Fprintf(buf, "var %s = %s.Identity{%s}\n\n", seedVar, runtimeName, r.Seed.GoLiteral())

	params := paramNames(r)
	target := d.Name
	if d.Subject == resolver.SubjectExpr {
		target = d.Expr
	} else if len(params) > 0 {
		target = d.Name + "[" + strings.Join(params, ", ") + "]"
	}

	var body string
	if !r.Generic() {
		body = "return " + seedVar
	} else {
		of := make([]string, len(params))
		for i, p := range params {
			of[i] = runtimeName + ".Of[" + p + "]"
		}
		body = fmt.Sprintf("return %s.Instantiate[%s](%s, %s)", runtimeName, target, seedVar, strings.Join(of, ", "))
	}

	switch shape {
	case ShapeMethod:
		fmt.Fprintf(buf, "// TypeUUID returns the type identity of %s.\n", target)
		fmt.Fprintf(buf, "func (%s) TypeUUID() %s.Identity {\n\t%s\n}\n", target, runtimeName, body)
	case ShapeFunc:
		name := FuncName(r)
		var tparams string
		if len(params) > 0 {
			list := make([]string, len(params))
			for i, p := range params {
				list[i] = p + " " + boundConstraint(r.Slots[i].Constraint)
			}
			tparams = "[" + strings.Join(list, ", ") + "]"
		}
		fmt.Fprintf(buf, "// %s returns the type identity of %s.\n", name, target)
		fmt.Fprintf(buf, "func %s%s() %s.Identity {\n\t%s\n}\n", name, tparams, runtimeName, body)
	}
	return nil
}

// SeedVar is the package-level variable holding r's seed.
func SeedVar(r *resolver.Resolution) string {
	base := lowerFirst(r.Decl.Name) + "TypeUUID"
	if r.Generic() || r.Decl.Subject == resolver.SubjectExpr {
		return base + "Seed"
	}
	return base
}

// FuncName is the accessor emitted in function form.
func FuncName(r *resolver.Resolution) string {
	return r.Decl.Name + "TypeUUID"
}

// paramNames returns the slot names, replacing blank parameters with names
// that can be referenced.
func paramNames(r *resolver.Resolution) []string {
	out := make([]string, len(r.Slots))
	for i, s := range r.Slots {
		if s.Param == "_" {
			out[i] = fmt.Sprintf("_P%d", i)
			continue
		}
		out[i] = s.Param
	}
	return out
}

// boundConstraint attaches the HasIdentity bound to a declared constraint.
func boundConstraint(c string) string {
	bound := runtimeName + "." + resolver.BoundHasIdentity
	switch c {
	case "", "any", "interface{}":
		return bound
	}
	if strings.Contains(c, resolver.BoundHasIdentity) {
		return c
	}
	return "interface {\n\t" + bound + "\n\t" + c + "\n}"
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
