// Package identity defines the 128-bit type identity value.
//
// An Identity has two lossless representations: 16 big-endian bytes (the
// order of the hyphenated hex text read left to right) and an unsigned
// 128-bit integer. No UUID version or variant semantics are imposed.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"lukechampine.com/uint128"
)

// Size is the byte length of an Identity.
const Size = 16

// Shape is the only accepted textual form.
const Shape = "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"

// ErrMalformed is wrapped by every Parse and FromBytes failure.
var ErrMalformed = errors.New("identity: malformed")

// Identity is an opaque 128-bit value stored big-endian.
type Identity [Size]byte

// Nil is the all-zero identity.
var Nil Identity

// Parse decodes the 8-4-4-4-12 hyphenated hex form. Hex digits are
// case-insensitive. Braced, URN-prefixed and unhyphenated forms are rejected.
func Parse(s string) (Identity, error) {
	if len(s) != len(Shape) {
		return Nil, fmt.Errorf("%w: %q is not of the form %s", ErrMalformed, s, Shape)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if Shape[i] == '-' {
			if c != '-' {
				return Nil, fmt.Errorf("%w: %q is not of the form %s", ErrMalformed, s, Shape)
			}
			continue
		}
		if !isHex(c) {
			return Nil, fmt.Errorf("%w: %q has non-hex character at offset %d", ErrMalformed, s, i)
		}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Identity(u), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBytes copies a 16-byte big-endian slice.
func FromBytes(b []byte) (Identity, error) {
	if len(b) != Size {
		return Nil, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformed, Size, len(b))
	}
	var id Identity
	copy(id[:], b)
	return id, nil
}

// FromUint128 returns the identity whose integer form is u.
func FromUint128(u uint128.Uint128) Identity {
	var id Identity
	u.PutBytesBE(id[:])
	return id
}

// Uint128 returns the integer form.
func (id Identity) Uint128() uint128.Uint128 {
	return uint128.FromBytesBE(id[:])
}

// Bytes returns a copy of the big-endian bytes.
func (id Identity) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// AddWrap returns (id + n) mod 2^128. Overflow wraps silently.
func (id Identity) AddWrap(n uint64) Identity {
	return FromUint128(id.Uint128().AddWrap64(n))
}

func (id Identity) IsNil() bool { return id == Nil }

// String returns the lower-case hyphenated hex form.
func (id Identity) String() string {
	return uuid.UUID(id).String()
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// GoLiteral renders the identity as a composite literal body of 16 hex bytes,
// e.g. "0x12, 0x34, ...".
func (id Identity) GoLiteral() string {
	const digits = "0123456789abcdef"
	b := make([]byte, 0, Size*6)
	for i, v := range id {
		if i > 0 {
			b = append(b, ',', ' ')
		}
		b = append(b, '0', 'x', digits[v>>4], digits[v&0x0f])
	}
	return string(b)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
