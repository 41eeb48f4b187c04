package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// MultiCAS reads through several archives in a fixed order. Writes and ref
// updates go to the first adapter only.
type MultiCAS struct {
	Adapters []CAS
}

var (
	_ CAS  = MultiCAS{}
	_ Refs = MultiCAS{}
)

func (m MultiCAS) Put(b []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(b)
}

func (m MultiCAS) Get(id cid.Cid) ([]byte, error) {
	for _, cas := range m.Adapters {
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(id) {
			return true
		}
	}
	return false
}

// SetRef updates the ref in the first adapter. The object must be readable
// through that adapter.
func (m MultiCAS) SetRef(name string, id cid.Cid) error {
	if len(m.Adapters) == 0 {
		return errors.New("storage: MultiCAS has no adapters")
	}
	refs, ok := m.Adapters[0].(Refs)
	if !ok {
		return errors.New("storage: first adapter does not support refs")
	}
	return refs.SetRef(name, id)
}

// Ref returns the first adapter's value for name. Adapters without refs are
// skipped.
func (m MultiCAS) Ref(name string) (cid.Cid, error) {
	for _, cas := range m.Adapters {
		refs, ok := cas.(Refs)
		if !ok {
			continue
		}
		id, err := refs.Ref(name)
		if err == nil {
			return id, nil
		}
		if !IsNotFound(err) {
			return cid.Undef, err
		}
	}
	return cid.Undef, ErrNotFound
}
