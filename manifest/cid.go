package manifest

import (
	"github.com/ipfs/go-cid"

	"xdao.co/typeuuid/cidutil"
)

// CID returns the CIDv1 (raw + sha2-256) of canonical manifest bytes.
// Non-canonical input is rejected.
func CID(data []byte) (cid.Cid, error) {
	canon, err := Canonicalize(data)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.Sum(canon)
	if err != nil {
		return cid.Undef, &Error{Kind: KindCID, RuleID: "TYPEUUID-MAN-301", Message: "cid derivation failed", Cause: err}
	}
	return id, nil
}

// RenderWithCID renders m and returns its CID.
func RenderWithCID(m Manifest) ([]byte, cid.Cid, error) {
	b, err := Render(m)
	if err != nil {
		return nil, cid.Undef, err
	}
	id, err := CID(b)
	if err != nil {
		return nil, cid.Undef, err
	}
	return b, id, nil
}
