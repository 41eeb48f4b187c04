// Package localfs is a directory-backed storage.CAS with named refs.
package localfs

import (
	"bytes"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/typeuuid/cidutil"
	"xdao.co/typeuuid/storage"
)

// CAS stores objects under root/objects/<shard>/<cid> and refs under
// root/refs/<escaped name>. Objects are written once with mode 0444.
type CAS struct {
	root string
}

var (
	_ storage.CAS  = (*CAS)(nil)
	_ storage.Refs = (*CAS)(nil)
)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	for _, dir := range []string{"objects", "refs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, err
		}
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Put(b []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(b)
	if err != nil {
		return cid.Undef, err
	}

	path := c.objectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(id)
			if rerr != nil || !bytes.Equal(existing, b) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.objectPath(id))
	return err == nil
}

// SetRef points name at id. The object must already be stored.
func (c *CAS) SetRef(name string, id cid.Cid) error {
	path, err := c.refPath(name)
	if err != nil {
		return err
	}
	if !c.Has(id) {
		return storage.ErrNotFound
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id.String()+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Ref returns the CID name points at, or storage.ErrNotFound.
func (c *CAS) Ref(name string) (cid.Cid, error) {
	path, err := c.refPath(name)
	if err != nil {
		return cid.Undef, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cid.Undef, storage.ErrNotFound
		}
		return cid.Undef, err
	}
	id, err := cid.Decode(strings.TrimSpace(string(b)))
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

func (c *CAS) objectPath(id cid.Cid) string {
	s := id.String()
	if len(s) < 4 {
		return filepath.Join(c.root, "objects", s)
	}
	// CIDv1 base32 strings share a common prefix; shard on the tail.
	return filepath.Join(c.root, "objects", s[len(s)-2:], s)
}

func (c *CAS) refPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "\x00\n") {
		return "", storage.ErrInvalidRef
	}
	return filepath.Join(c.root, "refs", url.PathEscape(name)), nil
}
