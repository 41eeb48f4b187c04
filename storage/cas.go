// Package storage defines the content-addressed archive used to keep every
// published identity manifest retrievable by its CID.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable store.
//
// Contract:
// - Put MUST be idempotent and MUST return the CID of the bytes written.
// - Stored objects MUST be immutable.
// - Callers are responsible for supplying canonical bytes.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Refs maps stable names (e.g. a package path) to the CID of their latest
// object. Unlike objects, refs are mutable.
type Refs interface {
	SetRef(name string, id cid.Cid) error
	Ref(name string) (cid.Cid, error)
}

// Archive is a CAS with refs.
type Archive interface {
	CAS
	Refs
}
