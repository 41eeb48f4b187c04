package manifest

import (
	"fmt"
	"sort"
	"strconv"
)

// DriftKind names a change that alters an already published identity.
type DriftKind string

const (
	DriftSeedChanged    DriftKind = "seed-changed"
	DriftArityChanged   DriftKind = "arity-changed"
	DriftMixChanged     DriftKind = "mix-changed"
	DriftPackageChanged DriftKind = "package-changed"
)

// Drift is one incompatible difference between two manifests.
type Drift struct {
	Kind DriftKind
	Type string
	Old  string
	New  string
}

func (d Drift) String() string {
	if d.Type == "" {
		return fmt.Sprintf("%s: %s -> %s", d.Kind, d.Old, d.New)
	}
	return fmt.Sprintf("%s %s: %s -> %s", d.Kind, d.Type, d.Old, d.New)
}

// Diff lists the changes from prev to next that would alter the identity of
// a type recorded in prev. Added and removed types are not drift, and neither
// are renamed type parameters. Header drift comes first, then entries sorted
// by type.
func Diff(prev, next *Manifest) []Drift {
	var out []Drift
	if prev.Package != next.Package {
		out = append(out, Drift{Kind: DriftPackageChanged, Old: prev.Package, New: next.Package})
	}
	if prev.Mix != next.Mix {
		out = append(out, Drift{Kind: DriftMixChanged, Old: prev.Mix, New: next.Mix})
	}

	var entries []Drift
	for _, ne := range next.Entries {
		oe, ok := prev.Lookup(ne.Name())
		if !ok {
			continue
		}
		if oe.Seed != ne.Seed {
			entries = append(entries, Drift{Kind: DriftSeedChanged, Type: ne.Name(), Old: oe.Seed.String(), New: ne.Seed.String()})
		}
		if oe.Arity() != ne.Arity() {
			entries = append(entries, Drift{Kind: DriftArityChanged, Type: ne.Name(), Old: strconv.Itoa(oe.Arity()), New: strconv.Itoa(ne.Arity())})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Type < entries[j].Type })
	return append(out, entries...)
}
