// Package manifest implements the identity lock manifest.
//
// A manifest records, per package, the seed identity of every annotated type
// and the mix function used to compose generic instantiations. It is the
// artifact that keeps identities stable across releases: regenerating code
// compares the new manifest with the committed one and rejects any change to
// an existing type's seed or shape.
//
// Canonical form (LF line endings, no BOM, no trailing whitespace, entries
// sorted by type, one trailing newline):
//
//	-----BEGIN TYPEUUID MANIFEST-----
//	Version: 1
//	Mix: blake2b-128-keyed/v1
//	Package: example.com/shapes
//
//	Pair[A,B] 12345678-1234-1234-1234-123456789abc
//	Widget 0f0e0d0c-0b0a-0908-0706-050403020100
//	-----END TYPEUUID MANIFEST-----
package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"xdao.co/typeuuid/identity"
)

const (
	Preamble  = "-----BEGIN TYPEUUID MANIFEST-----"
	Postamble = "-----END TYPEUUID MANIFEST-----"

	// Version is the only manifest version this package writes.
	Version = "1"
)

var headerOrder = []string{"Version", "Mix", "Package"}

// Entry is one annotated type.
type Entry struct {
	// Type is the type name followed by its parameter names, e.g. Pair[A,B].
	Type string
	Seed identity.Identity
}

// EntryType renders the Type field for a name and its parameter names.
func EntryType(name string, params []string) string {
	if len(params) == 0 {
		return name
	}
	return name + "[" + strings.Join(params, ",") + "]"
}

// Name returns the type name without parameters.
func (e Entry) Name() string {
	if i := strings.IndexByte(e.Type, '['); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// Arity returns the number of type parameters.
func (e Entry) Arity() int {
	i := strings.IndexByte(e.Type, '[')
	if i < 0 {
		return 0
	}
	return strings.Count(e.Type[i:], ",") + 1
}

type Manifest struct {
	Version string
	Mix     string
	Package string
	Entries []Entry
}

// Lookup finds an entry by type name.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name() == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Render produces canonical manifest bytes. Entries are sorted; m is not
// modified.
func Render(m Manifest) ([]byte, error) {
	if m.Version == "" {
		m.Version = Version
	}
	if err := validateHeader("Version", m.Version); err != nil {
		return nil, err
	}
	if m.Version != Version {
		return nil, newError(KindValidation, "TYPEUUID-MAN-101", fmt.Sprintf("unsupported version %q", m.Version))
	}
	if err := validateHeader("Mix", m.Mix); err != nil {
		return nil, err
	}
	if err := validateHeader("Package", m.Package); err != nil {
		return nil, err
	}

	entries := append([]Entry(nil), m.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Type < entries[j].Type })
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := validateEntryType(e.Type); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Name()]; dup {
			return nil, newError(KindValidation, "TYPEUUID-MAN-103", fmt.Sprintf("duplicate entry for type %q", e.Name()))
		}
		seen[e.Name()] = struct{}{}
	}

	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "Version: %s\n", m.Version)
	fmt.Fprintf(&sb, "Mix: %s\n", m.Mix)
	fmt.Fprintf(&sb, "Package: %s\n", m.Package)
	sb.WriteByte('\n')
	for _, e := range entries {
		sb.WriteString(e.Type)
		sb.WriteByte(' ')
		sb.WriteString(e.Seed.String())
		sb.WriteByte('\n')
	}
	sb.WriteString(Postamble)
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

// Parse reads manifest bytes. It enforces the byte-level rules and the
// overall layout but accepts entries in any order; use Canonicalize to
// require canonical bytes.
func Parse(data []byte) (*Manifest, error) {
	if !utf8.Valid(data) {
		return nil, newError(KindParse, "TYPEUUID-MAN-001", "manifest must be valid UTF-8")
	}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, newError(KindParse, "TYPEUUID-MAN-001", "BOM not allowed")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, newError(KindParse, "TYPEUUID-MAN-001", "CR line endings not allowed")
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return nil, newError(KindParse, "TYPEUUID-MAN-001", "missing trailing newline")
	}

	lines := strings.Split(string(data[:len(data)-1]), "\n")
	for i, line := range lines {
		if strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
			return nil, newError(KindParse, "TYPEUUID-MAN-001", fmt.Sprintf("line %d: trailing whitespace forbidden", i+1))
		}
	}
	if len(lines) < len(headerOrder)+3 {
		return nil, newError(KindParse, "TYPEUUID-MAN-002", "manifest too short")
	}
	if lines[0] != Preamble {
		return nil, newError(KindParse, "TYPEUUID-MAN-002", "missing manifest preamble")
	}
	if lines[len(lines)-1] != Postamble {
		return nil, newError(KindParse, "TYPEUUID-MAN-002", "missing manifest postamble")
	}

	m := &Manifest{}
	for i, key := range headerOrder {
		line := lines[1+i]
		k, v, ok := strings.Cut(line, ": ")
		if !ok || k != key {
			return nil, newError(KindParse, "TYPEUUID-MAN-003", fmt.Sprintf("line %d: expected header %q", i+2, key))
		}
		if err := validateHeader(key, v); err != nil {
			return nil, err
		}
		switch key {
		case "Version":
			m.Version = v
		case "Mix":
			m.Mix = v
		case "Package":
			m.Package = v
		}
	}
	if m.Version != Version {
		return nil, newError(KindValidation, "TYPEUUID-MAN-101", fmt.Sprintf("unsupported version %q", m.Version))
	}
	sep := 1 + len(headerOrder)
	if lines[sep] != "" {
		return nil, newError(KindParse, "TYPEUUID-MAN-003", fmt.Sprintf("line %d: expected blank line after headers", sep+1))
	}

	seen := make(map[string]struct{})
	for i := sep + 1; i < len(lines)-1; i++ {
		typ, seedText, ok := strings.Cut(lines[i], " ")
		if !ok {
			return nil, newError(KindParse, "TYPEUUID-MAN-004", fmt.Sprintf("line %d: expected \"<type> <uuid>\"", i+1))
		}
		if err := validateEntryType(typ); err != nil {
			return nil, err
		}
		seed, err := identity.Parse(seedText)
		if err != nil {
			return nil, &Error{Kind: KindParse, RuleID: "TYPEUUID-MAN-004", Message: fmt.Sprintf("line %d: %v", i+1, err), Cause: err}
		}
		e := Entry{Type: typ, Seed: seed}
		if _, dup := seen[e.Name()]; dup {
			return nil, newError(KindValidation, "TYPEUUID-MAN-103", fmt.Sprintf("duplicate entry for type %q", e.Name()))
		}
		seen[e.Name()] = struct{}{}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// Canonicalize is the canonicalization choke point: it returns a copy of
// data if and only if data is already canonical.
func Canonicalize(data []byte) ([]byte, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	canon, err := Render(*m)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canon, data) {
		return nil, newError(KindCanonical, "TYPEUUID-MAN-201", "manifest is not canonical (entries must be sorted by type)")
	}
	return append([]byte(nil), data...), nil
}

func validateHeader(key, v string) error {
	if v == "" {
		return newError(KindValidation, "TYPEUUID-MAN-102", fmt.Sprintf("header %q must not be empty", key))
	}
	if strings.ContainsAny(v, "\n\r") || strings.TrimSpace(v) != v {
		return newError(KindValidation, "TYPEUUID-MAN-102", fmt.Sprintf("header %q has surrounding whitespace or newlines", key))
	}
	return nil
}

func validateEntryType(typ string) error {
	bad := func() error {
		return newError(KindValidation, "TYPEUUID-MAN-104", fmt.Sprintf("invalid entry type %q", typ))
	}
	name, params, generic := strings.Cut(typ, "[")
	if !isIdent(name) {
		return bad()
	}
	if !generic {
		return nil
	}
	if !strings.HasSuffix(params, "]") {
		return bad()
	}
	for _, p := range strings.Split(strings.TrimSuffix(params, "]"), ",") {
		if !isIdent(p) {
			return bad()
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}
