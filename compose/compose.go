// Package compose implements the composite identity engine.
//
// A composite identity folds the identities of a type's generic parameters
// into the type's own seed identity:
//
//	acc = seed
//	for each slot, in ascending ordinal order:
//		acc = Mix(acc, slot.Identity + slot.Ordinal mod 2^128)
//
// The fold is a pure function of (seed, ordered slots). With no slots the
// result is the seed itself.
package compose

import (
	"slices"

	"golang.org/x/crypto/blake2b"

	"xdao.co/typeuuid/identity"
)

// MixName names the mix function. It is recorded in lock manifests so that a
// change of mix shows up as drift.
const MixName = "blake2b-128-keyed/v1"

var mixKey = []byte("xdao.co/typeuuid composite v1")

// Slot is one generic parameter position bound to the identity of the type
// substituted there.
type Slot struct {
	Ordinal  uint
	Identity identity.Identity
}

// Input is a seed plus its ordered slots.
type Input struct {
	Seed  identity.Identity
	Slots []Slot
}

// NewInput assigns ordinals by position: params[i] gets ordinal i.
func NewInput(seed identity.Identity, params ...identity.Identity) Input {
	slots := make([]Slot, len(params))
	for i, p := range params {
		slots[i] = Slot{Ordinal: uint(i), Identity: p}
	}
	return Input{Seed: seed, Slots: slots}
}

// Compose is shorthand for Compose(in.Seed, in.Slots).
func (in Input) Compose() identity.Identity {
	return Compose(in.Seed, in.Slots)
}

// Contribution returns the slot identity offset by its ordinal, wrapping
// modulo 2^128.
func Contribution(s Slot) identity.Identity {
	return s.Identity.AddWrap(uint64(s.Ordinal))
}

// Mix combines the accumulator with one contribution. It is a BLAKE2b MAC
// with a 16-byte digest over acc || contribution, so swapping the arguments
// yields an unrelated value.
func Mix(acc, contribution identity.Identity) identity.Identity {
	h, err := blake2b.New(identity.Size, mixKey)
	if err != nil {
		// Only reachable with an invalid size or a key over 64 bytes.
		panic("compose: " + err.Error())
	}
	_, _ = h.Write(acc[:])
	_, _ = h.Write(contribution[:])
	var out identity.Identity
	copy(out[:], h.Sum(nil))
	return out
}

// Compose folds slots into seed in ascending ordinal order. Slots with equal
// ordinals keep their relative order. slots is never modified.
func Compose(seed identity.Identity, slots []Slot) identity.Identity {
	if len(slots) == 0 {
		return seed
	}
	if !slices.IsSortedFunc(slots, byOrdinal) {
		slots = slices.Clone(slots)
		slices.SortStableFunc(slots, byOrdinal)
	}
	acc := seed
	for _, s := range slots {
		acc = Mix(acc, Contribution(s))
	}
	return acc
}

func byOrdinal(a, b Slot) int {
	switch {
	case a.Ordinal < b.Ordinal:
		return -1
	case a.Ordinal > b.Ordinal:
		return 1
	default:
		return 0
	}
}
