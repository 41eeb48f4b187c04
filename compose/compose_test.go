package compose

import (
	"math/rand"
	"testing"

	"xdao.co/typeuuid/identity"
)

var (
	seedB  = identity.MustParse("12345678-1234-1234-1234-123456789abc")
	paramP = identity.MustParse("a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f")
	paramQ = identity.MustParse("0f0e0d0c-0b0a-0908-0706-050403020100")
	maxID  = identity.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
)

func randomIdentity(rng *rand.Rand) identity.Identity {
	var id identity.Identity
	_, _ = rng.Read(id[:])
	return id
}

func TestCompose_ScenarioA_NilSeedNoSlots(t *testing.T) {
	if got := Compose(identity.Nil, nil); got != identity.Nil {
		t.Fatalf("got %s want nil identity", got)
	}
}

func TestCompose_ScenarioB_SeedUnchanged(t *testing.T) {
	got := Compose(seedB, nil)
	if got != seedB {
		t.Fatalf("got %s want %s", got, seedB)
	}
	if got.String() != "12345678-1234-1234-1234-123456789abc" {
		t.Fatalf("got %s", got)
	}
	if got := Compose(seedB, []Slot{}); got != seedB {
		t.Fatalf("empty slice: got %s want %s", got, seedB)
	}
}

func TestCompose_ScenarioC_OrdinalChangesOutput(t *testing.T) {
	first := Compose(seedB, []Slot{{Ordinal: 0, Identity: paramP}})
	if want := Mix(seedB, paramP); first != want {
		t.Fatalf("ordinal 0: got %s want %s", first, want)
	}
	if first.String() != "31b8abcc-ef88-ec38-b159-b061a3089e25" {
		t.Fatalf("ordinal 0 vector: got %s", first)
	}

	second := Compose(seedB, []Slot{{Ordinal: 1, Identity: paramP}})
	if want := Mix(seedB, paramP.AddWrap(1)); second != want {
		t.Fatalf("ordinal 1: got %s want %s", second, want)
	}
	if second.String() != "994a98a5-0d2c-e208-5cfa-19e6aa497052" {
		t.Fatalf("ordinal 1 vector: got %s", second)
	}
	if first == second {
		t.Fatalf("ordinal did not change output")
	}
}

func TestCompose_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 64; i++ {
		seed := randomIdentity(rng)
		in := NewInput(seed, randomIdentity(rng), randomIdentity(rng), randomIdentity(rng))
		a := in.Compose()
		b := in.Compose()
		if a != b {
			t.Fatalf("non-deterministic: %s vs %s", a, b)
		}
	}
}

func TestCompose_IdentityOnEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 64; i++ {
		seed := randomIdentity(rng)
		if got := NewInput(seed).Compose(); got != seed {
			t.Fatalf("got %s want %s", got, seed)
		}
	}
}

func TestCompose_OrderSensitive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 256; i++ {
		seed := randomIdentity(rng)
		p1 := randomIdentity(rng)
		p2 := randomIdentity(rng)
		if p1 == p2 {
			continue
		}
		ab := NewInput(seed, p1, p2).Compose()
		ba := NewInput(seed, p2, p1).Compose()
		if ab == ba {
			t.Fatalf("order collision: seed=%s p1=%s p2=%s", seed, p1, p2)
		}
	}
}

// Identical parameters at different ordinals must still be distinguishable
// from a single parameter repeated at the same ordinal.
func TestCompose_RepeatedParamUsesOrdinal(t *testing.T) {
	twice := NewInput(seedB, paramP, paramP).Compose()
	sameOrdinal := Compose(seedB, []Slot{{0, paramP}, {0, paramP}})
	if twice == sameOrdinal {
		t.Fatalf("ordinal offset not applied")
	}
}

func TestCompose_WrappingContribution(t *testing.T) {
	in := NewInput(seedB, paramQ, maxID)
	if got := Contribution(in.Slots[1]); got != identity.Nil {
		t.Fatalf("max+1 contribution: got %s want nil", got)
	}
	got := in.Compose()
	want := Mix(Mix(seedB, paramQ), identity.Nil)
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
	if got.String() != "c5ac1eab-b031-7488-4502-48644369a04a" {
		t.Fatalf("wrap vector: got %s", got)
	}

	// Order sensitivity still holds with the wrapped value.
	if swapped := NewInput(seedB, maxID, paramQ).Compose(); swapped == got {
		t.Fatalf("wrapped order collision")
	}
}

func TestCompose_SortsByOrdinalWithoutMutating(t *testing.T) {
	ordered := []Slot{{0, paramP}, {1, paramQ}}
	shuffled := []Slot{{1, paramQ}, {0, paramP}}
	if Compose(seedB, ordered) != Compose(seedB, shuffled) {
		t.Fatalf("slot order by ordinal not honored")
	}
	if shuffled[0].Ordinal != 1 || shuffled[1].Ordinal != 0 {
		t.Fatalf("input slots were reordered in place")
	}
}

func TestMix_NotCommutativeNotXOR(t *testing.T) {
	ab := Mix(seedB, paramP)
	ba := Mix(paramP, seedB)
	if ab == ba {
		t.Fatalf("mix is commutative for %s, %s", seedB, paramP)
	}
	if ba.String() != "61c00dcc-92ec-cc7c-cce1-389ff69c856c" {
		t.Fatalf("mix vector: got %s", ba)
	}
	var x identity.Identity
	for i := range x {
		x[i] = seedB[i] ^ paramP[i]
	}
	if ab == x {
		t.Fatalf("mix degenerated to XOR")
	}
	if ab == seedB || ab == paramP {
		t.Fatalf("mix returned an input")
	}
}

func TestNewInput_Ordinals(t *testing.T) {
	in := NewInput(seedB, paramP, paramQ, maxID)
	if in.Seed != seedB {
		t.Fatalf("seed not preserved")
	}
	for i, s := range in.Slots {
		if s.Ordinal != uint(i) {
			t.Fatalf("slot %d has ordinal %d", i, s.Ordinal)
		}
	}
}
