package resolver

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	KindMissingIdentity         Kind = "MissingIdentity"
	KindMalformedIdentity       Kind = "MalformedIdentity"
	KindMalformedAttributeShape Kind = "MalformedAttributeShape"
	KindMalformedDeclaration    Kind = "MalformedDeclaration"
)

// Rule identifiers.
const (
	RuleMissingUUID       = "TYPEUUID-ATTR-001"
	RuleAttributeShape    = "TYPEUUID-ATTR-002"
	RuleDuplicateUUID     = "TYPEUUID-ATTR-003"
	RuleAttributeSyntax   = "TYPEUUID-ATTR-004"
	RuleMalformedUUID     = "TYPEUUID-ID-001"
	RuleDeclarationSyntax = "TYPEUUID-DECL-001"
	RuleParamArity        = "TYPEUUID-DECL-002"
)

// ExpectedForm is quoted in attribute error messages.
const ExpectedForm = `uuid = "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"`

// Error is the package's structured error type.
//
// Decl names the declaration being processed (with its position when known).
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Decl    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Decl == "" {
		return e.Message
	}
	return e.Decl + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, decl, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Decl: decl, Message: msg}
}

func wrapError(kind Kind, ruleID, decl, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, decl, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Decl: decl, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
