// Package bundle moves archived lock manifests between archives as a
// deterministic tar stream.
//
// A bundle holds one entry per manifest, manifests/<cid>, followed by
// index.json mapping package paths to those CIDs. Entries are sorted and tar
// headers are normalized, so the same input always yields the same bytes.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/typeuuid/cidutil"
	"xdao.co/typeuuid/manifest"
	"xdao.co/typeuuid/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

const (
	manifestDir = "manifests/"
	indexName   = "index.json"
)

var epoch = time.Unix(0, 0).UTC()

// Export writes the current manifest of each package in packages. Every
// object must be a canonical manifest whose Package header matches the ref
// it was found under.
func Export(w io.Writer, src storage.Archive, packages []string) error {
	if src == nil {
		return fmt.Errorf("bundle: nil archive")
	}
	pkgs := append([]string(nil), packages...)
	sort.Strings(pkgs)

	idx := indexJSON{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256"}
	objects := make(map[string][]byte, len(pkgs))
	for i, pkg := range pkgs {
		if i > 0 && pkgs[i-1] == pkg {
			continue
		}
		id, err := src.Ref(pkg)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", pkg, err)
		}
		b, err := src.Get(id)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", pkg, err)
		}
		if err := checkManifest(pkg, b); err != nil {
			return err
		}
		objects[id.String()] = b
		idx.Packages = append(idx.Packages, indexPackage{Package: pkg, CID: id.String()})
	}

	ids := make([]string, 0, len(objects))
	for s := range objects {
		ids = append(ids, s)
	}
	sort.Strings(ids)

	tw := tar.NewWriter(w)
	for _, s := range ids {
		if err := writeFile(tw, manifestDir+s, objects[s]); err != nil {
			_ = tw.Close()
			return err
		}
	}
	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeFile(tw, indexName, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// Import reads a bundle into dst and points each package ref at its
// manifest. Refs are only updated once every entry has been verified.
// Import returns the package to CID mapping it applied.
func Import(r io.Reader, dst storage.Archive) (map[string]cid.Cid, error) {
	if dst == nil {
		return nil, fmt.Errorf("bundle: nil archive")
	}

	tr := tar.NewReader(r)
	objects := map[string][]byte{}
	var idx *indexJSON
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		switch {
		case name == indexName:
			if idx != nil {
				return nil, fmt.Errorf("bundle: duplicate %s", indexName)
			}
			idx = &indexJSON{}
			if err := json.Unmarshal(payload, idx); err != nil {
				return nil, fmt.Errorf("bundle: %s: %w", indexName, err)
			}
		case strings.HasPrefix(name, manifestDir):
			id, err := cid.Decode(strings.TrimPrefix(name, manifestDir))
			if err != nil || !id.Defined() {
				return nil, storage.ErrInvalidCID
			}
			if err := cidutil.Verify(id, payload); err != nil {
				return nil, storage.ErrCIDMismatch
			}
			if _, dup := objects[id.String()]; dup {
				return nil, fmt.Errorf("bundle: duplicate manifest entry: %s", id)
			}
			objects[id.String()] = payload
		default:
			return nil, fmt.Errorf("bundle: unknown entry: %s", name)
		}
	}

	if idx == nil {
		return nil, fmt.Errorf("bundle: missing %s", indexName)
	}
	if idx.Version != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}

	refs := make(map[string]cid.Cid, len(idx.Packages))
	for _, p := range idx.Packages {
		b, ok := objects[p.CID]
		if !ok {
			return nil, fmt.Errorf("bundle: %s: manifest %s not in bundle", p.Package, p.CID)
		}
		if err := checkManifest(p.Package, b); err != nil {
			return nil, err
		}
		if _, dup := refs[p.Package]; dup {
			return nil, fmt.Errorf("bundle: duplicate package %s", p.Package)
		}
		id, err := cid.Decode(p.CID)
		if err != nil {
			return nil, storage.ErrInvalidCID
		}
		refs[p.Package] = id
	}

	for _, b := range objects {
		if _, err := dst.Put(b); err != nil {
			return nil, err
		}
	}
	for _, p := range idx.Packages {
		if err := dst.SetRef(p.Package, refs[p.Package]); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func checkManifest(pkg string, b []byte) error {
	if _, err := manifest.Canonicalize(b); err != nil {
		return fmt.Errorf("bundle: %s: %w", pkg, err)
	}
	m, err := manifest.Parse(b)
	if err != nil {
		return fmt.Errorf("bundle: %s: %w", pkg, err)
	}
	if m.Package != pkg {
		return fmt.Errorf("bundle: ref %s holds the manifest of %s", pkg, m.Package)
	}
	return nil
}

type indexJSON struct {
	Version   int            `json:"version"`
	CIDCodec  string         `json:"cidCodec"`
	Multihash string         `json:"multihash"`
	Packages  []indexPackage `json:"packages"`
}

type indexPackage struct {
	Package string `json:"package"`
	CID     string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"), "./")
	if name == "" || strings.HasPrefix(name, "/") {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
