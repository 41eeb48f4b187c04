// Package typeuuid is the runtime half of type identities.
//
// A type carries an identity by implementing HasIdentity. Code produced by
// the typeuuid generator implements it for annotated types; generic types
// compose their seed with the identities of their type arguments through
// Instantiate, which memoizes the result per concrete instantiation:
//
//	func (Pair[A, B]) TypeUUID() typeuuid.Identity {
//		return typeuuid.Instantiate[Pair[A, B]](pairTypeUUIDSeed, typeuuid.Of[A], typeuuid.Of[B])
//	}
//
// Requiring A and B to satisfy HasIdentity is what makes Of[A] compile; the
// bound is checked by the Go compiler, not at run time.
package typeuuid

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"xdao.co/typeuuid/compose"
	"xdao.co/typeuuid/identity"
)

// Identity is the 128-bit type identity.
type Identity = identity.Identity

// HasIdentity is implemented by types with a stable type identity.
//
// TypeUUID must not depend on the receiver's value; it is called on zero
// values.
type HasIdentity interface {
	TypeUUID() Identity
}

// ErrNoIdentity is returned by OfValue for values whose type does not
// implement HasIdentity.
var ErrNoIdentity = errors.New("typeuuid: type does not implement HasIdentity")

// Of returns the identity of T. T must be a concrete type: an interface type
// argument has a nil zero value and Of panics.
func Of[T HasIdentity]() Identity {
	var zero T
	return zero.TypeUUID()
}

// instantiation keys the memo. The seed is part of the key: two
// declarations may give the same type expression different seeds.
type instantiation struct {
	self reflect.Type
	seed Identity
}

// instantiations maps instantiation to Identity. Entries are written once and
// never removed.
var instantiations sync.Map

// Instantiate returns the composite identity of the instantiation Self: seed
// folded with the identity of each parameter, in order. params are only
// evaluated the first time a given (Self, seed) pair is seen; later calls
// return the memoized value.
func Instantiate[Self any](seed Identity, params ...func() Identity) Identity {
	key := instantiation{self: reflect.TypeOf((*Self)(nil)).Elem(), seed: seed}
	if v, ok := instantiations.Load(key); ok {
		return v.(Identity)
	}
	slots := make([]compose.Slot, len(params))
	for i, p := range params {
		slots[i] = compose.Slot{Ordinal: uint(i), Identity: p()}
	}
	v, _ := instantiations.LoadOrStore(key, compose.Compose(seed, slots))
	return v.(Identity)
}

// Lookup reports the memoized identity of the instantiation t under seed, if
// Instantiate has already computed it.
func Lookup(t reflect.Type, seed Identity) (Identity, bool) {
	v, ok := instantiations.Load(instantiation{self: t, seed: seed})
	if !ok {
		return identity.Nil, false
	}
	return v.(Identity), true
}

// OfValue returns the identity of v's dynamic type. It is the run-time
// counterpart of Of for callers holding an untyped value.
func OfValue(v any) (Identity, error) {
	h, ok := v.(HasIdentity)
	if !ok {
		return identity.Nil, fmt.Errorf("%w: %T", ErrNoIdentity, v)
	}
	return h.TypeUUID(), nil
}

// Compose folds params into seed with ordinals assigned by position. It does
// not consult or populate the instantiation memo.
func Compose(seed Identity, params ...Identity) Identity {
	return compose.NewInput(seed, params...).Compose()
}

// MustParse parses the hyphenated hex form and panics on error.
func MustParse(s string) Identity {
	return identity.MustParse(s)
}
