package resolver

import (
	"strconv"
	"strings"
)

// LiteralKind classifies the value side of a name/value attribute.
type LiteralKind uint8

const (
	LiteralNone LiteralKind = iota
	LiteralString
	LiteralNumber
	LiteralIdent
	LiteralOther
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralNone:
		return "none"
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralIdent:
		return "identifier"
	default:
		return "other"
	}
}

// Attribute is one parsed directive attached to a declaration.
//
// For `uuid = "..."` NameValue is true, Kind is LiteralString and Value holds
// the unquoted text. A bare marker such as `derive` has NameValue false and an
// empty Value. Any other trailing text is kept verbatim in Value.
type Attribute struct {
	Name      string
	Value     string
	Kind      LiteralKind
	NameValue bool
}

// ParseAttribute parses `name`, `name = literal` or `name <anything>`.
func ParseAttribute(src string) (Attribute, error) {
	s := strings.TrimSpace(src)
	n := identLen(s)
	if n == 0 {
		return Attribute{}, newError(KindMalformedAttributeShape, RuleAttributeSyntax, "",
			"attribute "+strconv.Quote(src)+" does not start with a name")
	}
	attr := Attribute{Name: s[:n]}
	rest := strings.TrimSpace(s[n:])
	if rest == "" {
		return attr, nil
	}
	if rest[0] != '=' {
		attr.Value = rest
		attr.Kind = LiteralOther
		return attr, nil
	}

	attr.NameValue = true
	lit := strings.TrimSpace(rest[1:])
	switch {
	case lit == "":
		return Attribute{}, newError(KindMalformedAttributeShape, RuleAttributeSyntax, "",
			"attribute "+strconv.Quote(attr.Name)+" has no value")
	case lit[0] == '"' || lit[0] == '`':
		v, err := strconv.Unquote(lit)
		if err != nil {
			return Attribute{}, wrapError(KindMalformedAttributeShape, RuleAttributeSyntax, "",
				"attribute "+strconv.Quote(attr.Name)+" has an unterminated or invalid string literal", err)
		}
		attr.Value = v
		attr.Kind = LiteralString
	case isDigit(lit[0]):
		attr.Value = lit
		attr.Kind = LiteralNumber
	case identLen(lit) == len(lit):
		attr.Value = lit
		attr.Kind = LiteralIdent
	default:
		attr.Value = lit
		attr.Kind = LiteralOther
	}
	return attr, nil
}

func identLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || (i > 0 && isDigit(c)) {
			continue
		}
		return i
	}
	return len(s)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
