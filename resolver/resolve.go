package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"xdao.co/typeuuid/compose"
	"xdao.co/typeuuid/identity"
)

// UUIDAttribute is the attribute carrying the seed.
const UUIDAttribute = "uuid"

// BoundHasIdentity is the capability every substituted parameter type must
// provide.
const BoundHasIdentity = "HasIdentity"

// Slot is a generic parameter position. Its identity is only known once a
// concrete type is substituted; Bound names the capability that type must
// provide.
type Slot struct {
	Ordinal    uint
	Param      string
	Constraint string
	Bound      string
}

// Resolution is the resolver output for one declaration.
type Resolution struct {
	Decl  Declaration
	Seed  identity.Identity
	Slots []Slot
	// EchoTypeGenerics reports whether the emitted target is the declared
	// name with its own parameter list attached (Name[A, B]). It is true for
	// SubjectNamed and false for SubjectExpr; emitters may override it.
	EchoTypeGenerics bool
}

// Generic reports whether composition is required.
func (r *Resolution) Generic() bool { return len(r.Slots) > 0 }

// Input binds concrete parameter identities to the slots, in ordinal order.
func (r *Resolution) Input(params ...identity.Identity) (compose.Input, error) {
	if len(params) != len(r.Slots) {
		return compose.Input{}, newError(KindMalformedDeclaration, RuleParamArity, r.Decl.label(),
			fmt.Sprintf("expected %d parameter identities, got %d", len(r.Slots), len(params)))
	}
	slots := make([]compose.Slot, len(r.Slots))
	for i, s := range r.Slots {
		slots[i] = compose.Slot{Ordinal: s.Ordinal, Identity: params[i]}
	}
	return compose.Input{Seed: r.Seed, Slots: slots}, nil
}

// Compose binds params and runs the engine.
func (r *Resolution) Compose(params ...identity.Identity) (identity.Identity, error) {
	in, err := r.Input(params...)
	if err != nil {
		return identity.Nil, err
	}
	return in.Compose(), nil
}

// Resolve validates d and produces its Resolution.
//
// Exactly one `uuid = "..."` attribute is required. Other attributes are
// ignored, including ones that do not parse. There is no fallback seed: a declaration without one fails with
// KindMissingIdentity.
func Resolve(d Declaration) (*Resolution, error) {
	if err := checkDeclaration(d); err != nil {
		return nil, err
	}

	var (
		seed  identity.Identity
		found bool
	)
	for _, raw := range d.Attributes {
		attr, err := ParseAttribute(raw)
		if err != nil {
			if attributeName(raw) != UUIDAttribute {
				continue
			}
			if e, ok := err.(*Error); ok {
				e.Decl = d.label()
			}
			return nil, err
		}
		if attr.Name != UUIDAttribute {
			continue
		}
		if found {
			return nil, newError(KindMalformedAttributeShape, RuleDuplicateUUID, d.label(),
				"more than one `uuid` attribute; exactly one of the form `"+ExpectedForm+"` is allowed")
		}
		if !attr.NameValue || attr.Kind != LiteralString {
			return nil, newError(KindMalformedAttributeShape, RuleAttributeShape, d.label(),
				"`uuid` attribute must take the form `"+ExpectedForm+"`")
		}
		id, err := identity.Parse(attr.Value)
		if err != nil {
			return nil, wrapError(KindMalformedIdentity, RuleMalformedUUID, d.label(),
				"value "+strconv.Quote(attr.Value)+" specified to `uuid` attribute is not a valid UUID of the form "+identity.Shape, err)
		}
		seed = id
		found = true
	}
	if !found {
		return nil, newError(KindMissingIdentity, RuleMissingUUID, d.label(),
			"no `"+ExpectedForm+"` attribute found")
	}

	slots := make([]Slot, len(d.TypeParams))
	for i, p := range d.TypeParams {
		slots[i] = Slot{
			Ordinal:    uint(i),
			Param:      p.Name,
			Constraint: p.Constraint,
			Bound:      BoundHasIdentity,
		}
	}
	return &Resolution{
		Decl:             d,
		Seed:             seed,
		Slots:            slots,
		EchoTypeGenerics: d.Subject == SubjectNamed,
	}, nil
}

// attributeName returns the leading identifier of raw, or "".
func attributeName(raw string) string {
	s := strings.TrimSpace(raw)
	return s[:identLen(s)]
}

func checkDeclaration(d Declaration) error {
	if d.Name == "" || identLen(d.Name) != len(d.Name) {
		return newError(KindMalformedDeclaration, RuleDeclarationSyntax, d.Pos,
			"declaration name "+strconv.Quote(d.Name)+" is not an identifier")
	}
	switch d.Subject {
	case SubjectNamed:
	case SubjectExpr:
		if d.Expr == "" {
			return newError(KindMalformedDeclaration, RuleDeclarationSyntax, d.label(),
				"type expression subject requires a type expression")
		}
	default:
		return newError(KindMalformedDeclaration, RuleDeclarationSyntax, d.label(),
			fmt.Sprintf("unknown subject kind %d", d.Subject))
	}
	seen := make(map[string]struct{}, len(d.TypeParams))
	for _, p := range d.TypeParams {
		if p.Name == "" || identLen(p.Name) != len(p.Name) {
			return newError(KindMalformedDeclaration, RuleDeclarationSyntax, d.label(),
				"type parameter "+strconv.Quote(p.Name)+" is not an identifier")
		}
		if _, dup := seen[p.Name]; dup {
			return newError(KindMalformedDeclaration, RuleDeclarationSyntax, d.label(),
				"duplicate type parameter "+strconv.Quote(p.Name))
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
