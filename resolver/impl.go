package resolver

import (
	"strconv"
	"strings"
)

// ParseImpl parses the one-line form used to attach an identity to a type
// without annotating its declaration:
//
//	Name[T, U any], "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
//
// The type parameter list is optional and follows Go grouping rules, so in
// `[A, B any]` both parameters share the constraint. The result is a
// SubjectNamed declaration carrying a single uuid attribute; the literal is
// validated by Resolve.
func ParseImpl(src string) (Declaration, error) {
	s := strings.TrimSpace(src)
	comma := topLevelComma(s)
	if comma < 0 {
		return Declaration{}, newError(KindMalformedDeclaration, RuleDeclarationSyntax, "",
			"expected `Name[T, ...], \"uuid\"`, got "+strconv.Quote(src))
	}
	head := strings.TrimSpace(s[:comma])
	lit := strings.TrimSpace(s[comma+1:])

	n := identLen(head)
	if n == 0 {
		return Declaration{}, newError(KindMalformedDeclaration, RuleDeclarationSyntax, "",
			"missing type name in "+strconv.Quote(src))
	}
	d := Declaration{Name: head[:n], Subject: SubjectNamed}
	rest := strings.TrimSpace(head[n:])
	if rest != "" {
		params, err := ParseTypeParams(rest)
		if err != nil {
			return Declaration{}, err
		}
		d.TypeParams = params
	}
	d.Attributes = []string{UUIDAttribute + " = " + lit}
	return d, nil
}

// ParseTypeParams parses a bracketed type parameter list such as
// "[K comparable, V any]" or "[A, B]".
func ParseTypeParams(src string) ([]TypeParam, error) {
	s := strings.TrimSpace(src)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, newError(KindMalformedDeclaration, RuleDeclarationSyntax, "",
			"type parameter list "+strconv.Quote(src)+" must be enclosed in brackets")
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, newError(KindMalformedDeclaration, RuleDeclarationSyntax, "",
			"empty type parameter list")
	}

	var (
		out     []TypeParam
		pending []string
	)
	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		n := identLen(part)
		if n == 0 {
			return nil, newError(KindMalformedDeclaration, RuleDeclarationSyntax, "",
				"invalid type parameter "+strconv.Quote(part))
		}
		name := part[:n]
		constraint := strings.TrimSpace(part[n:])
		if constraint == "" {
			pending = append(pending, name)
			continue
		}
		for _, p := range pending {
			out = append(out, TypeParam{Name: p, Constraint: constraint})
		}
		pending = pending[:0]
		out = append(out, TypeParam{Name: name, Constraint: constraint})
	}
	for _, p := range pending {
		out = append(out, TypeParam{Name: p})
	}
	return out, nil
}

// topLevelComma returns the index of the last comma outside brackets,
// parentheses, braces and string literals, or -1.
func topLevelComma(s string) int {
	last := -1
	walkTopLevel(s, func(i int) { last = i })
	return last
}

func splitTopLevel(s string) []string {
	var (
		parts []string
		start int
	)
	walkTopLevel(s, func(i int) {
		parts = append(parts, s[start:i])
		start = i + 1
	})
	return append(parts, s[start:])
}

func walkTopLevel(s string, onComma func(int)) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && quote == '"' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '`':
			quote = c
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				onComma(i)
			}
		}
	}
}
