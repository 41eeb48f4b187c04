// Package testkit holds conformance suites shared by storage backends.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/typeuuid/cidutil"
	"xdao.co/typeuuid/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

const sample = "-----BEGIN TYPEUUID MANIFEST-----\nVersion: 1\nMix: m\nPackage: p\n\n-----END TYPEUUID MANIFEST-----\n"

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte(sample)

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.Sum(want)
		if err != nil {
			t.Fatalf("cidutil.Sum failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := cidutil.Verify(id, got); err != nil {
			t.Fatalf("Get returned bytes not matching requested CID: %v", err)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		id1, err := cas.Put([]byte(sample))
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put([]byte(sample))
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.Sum(b)
		if err != nil {
			t.Fatalf("cidutil.Sum failed: %v", err)
		}
		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("Refs", func(t *testing.T) {
		cas := newCAS(t)
		refs, ok := cas.(storage.Refs)
		if !ok {
			t.Skip("backend has no refs")
		}
		if _, err := refs.Ref("example.com/shapes"); !storage.IsNotFound(err) {
			t.Fatalf("Ref missing: got err=%v want ErrNotFound", err)
		}
		missing, _ := cidutil.Sum([]byte("never stored"))
		if err := refs.SetRef("example.com/shapes", missing); !storage.IsNotFound(err) {
			t.Fatalf("SetRef to absent object: got err=%v want ErrNotFound", err)
		}

		first, err := cas.Put([]byte(sample))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		second, err := cas.Put([]byte(sample + "x"))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		for _, want := range []cid.Cid{first, second} {
			if err := refs.SetRef("example.com/shapes", want); err != nil {
				t.Fatalf("SetRef failed: %v", err)
			}
			got, err := refs.Ref("example.com/shapes")
			if err != nil {
				t.Fatalf("Ref failed: %v", err)
			}
			if got != want {
				t.Fatalf("Ref: got %s want %s", got, want)
			}
		}
	})
}
