// Package cidutil derives content identifiers for canonical bytes.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns the CIDv1 (raw codec, sha2-256 multihash) of data.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// String is Sum rendered in its default (base32) string form.
func String(data []byte) (string, error) {
	id, err := Sum(data)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Verify reports an error if data does not hash to id. The hash function is
// taken from id's multihash, so identifiers made elsewhere also verify.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return fmt.Errorf("cidutil: undefined cid")
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return fmt.Errorf("cidutil: cid mismatch: have %s, data hashes to %s", id, got)
	}
	return nil
}
