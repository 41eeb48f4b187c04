// Package gen is the source generator: it scans a package for annotated
// type declarations, resolves them, emits TypeUUID implementations and keeps
// the identity lock manifest up to date.
package gen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/typeuuid/compose"
	"xdao.co/typeuuid/identity"
	"xdao.co/typeuuid/manifest"
	"xdao.co/typeuuid/resolver"
	"xdao.co/typeuuid/storage/localfs"
)

// ErrStale is returned by Check when a generated file or the lock differs
// from what Generate would write.
var ErrStale = errors.New("gen: generated files are stale")

// DriftError reports changes to identities already recorded in the lock.
type DriftError struct {
	Lock  string
	Drift []manifest.Drift
}

func (e *DriftError) Error() string {
	parts := make([]string, len(e.Drift))
	for i, d := range e.Drift {
		parts[i] = d.String()
	}
	return fmt.Sprintf("gen: %s: identity drift: %s", e.Lock, strings.Join(parts, "; "))
}

type Options struct {
	// Logger receives progress records. Nil disables logging.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(discardHandler{})
}

// Result describes one generator run.
type Result struct {
	Package     *Package
	Resolutions []*resolver.Resolution
	// OutputPath and Source are the generated file.
	OutputPath string
	Source     []byte
	// LockPath, Lock and LockCID are empty when the lock is disabled.
	LockPath string
	Lock     []byte
	LockCID  cid.Cid
	// Written lists the files Generate changed on disk.
	Written []string
	// Archived is the CID stored in the archive, if one is configured.
	Archived cid.Cid
}

// Generate runs the pipeline for dir and writes the generated file and the
// lock. Nothing is written when any declaration fails to resolve or when the
// new manifest drifts from the committed lock.
func Generate(ctx context.Context, dir string, cfg Config, opts Options) (*Result, error) {
	log := opts.logger()
	res, err := plan(ctx, dir, cfg, log)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	for _, f := range []struct {
		path string
		data []byte
	}{
		{res.OutputPath, res.Source},
		{res.LockPath, res.Lock},
	} {
		if f.path == "" {
			continue
		}
		changed, err := writeIfChanged(f.path, f.data)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Written = append(res.Written, f.path)
			log.Info("wrote", "path", f.path, "bytes", len(f.data))
		}
	}

	if cfg.Archive != "" && res.Lock != nil {
		root := cfg.Archive
		if !filepath.IsAbs(root) {
			root = filepath.Join(dir, root)
		}
		cas, err := localfs.New(root)
		if err != nil {
			return nil, fmt.Errorf("gen: archive: %w", err)
		}
		id, err := cas.Put(res.Lock)
		if err != nil {
			return nil, fmt.Errorf("gen: archive: %w", err)
		}
		if err := cas.SetRef(res.Package.ImportPath, id); err != nil {
			return nil, fmt.Errorf("gen: archive ref: %w", err)
		}
		res.Archived = id
		log.Info("archived lock", "cid", id.String(), "root", root)
	}
	return res, nil
}

// Check runs the pipeline without writing and returns ErrStale when the
// generated file or the lock on disk is out of date.
func Check(ctx context.Context, dir string, cfg Config, opts Options) (*Result, error) {
	log := opts.logger()
	res, err := plan(ctx, dir, cfg, log)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, f := range []struct {
		path string
		data []byte
	}{
		{res.OutputPath, res.Source},
		{res.LockPath, res.Lock},
	} {
		if f.path == "" {
			continue
		}
		cur, err := os.ReadFile(f.path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err != nil || !bytes.Equal(cur, f.data) {
			stale = append(stale, filepath.Base(f.path))
		}
	}
	if len(stale) > 0 {
		log.Warn("stale", "files", stale)
		return res, fmt.Errorf("%w: %s", ErrStale, strings.Join(stale, ", "))
	}
	log.Debug("up to date", "dir", dir)
	return res, nil
}

func plan(ctx context.Context, dir string, cfg Config, log *slog.Logger) (*Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pkg, err := Scan(ctx, dir, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("scanned", "dir", dir, "package", pkg.Name, "files", len(pkg.Files), "declarations", len(pkg.Decls))

	var (
		errs  []error
		res   = make([]*resolver.Resolution, 0, len(pkg.Decls))
		names = make(map[string]string, len(pkg.Decls))
		seeds = make(map[identity.Identity]string, len(pkg.Decls))
		exprs = make(map[string]string)
	)
	for _, d := range pkg.Decls {
		r, err := resolver.Resolve(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := names[d.Name]; ok {
			errs = append(errs, fmt.Errorf("gen: %s: %s already declared at %s", d.Pos, d.Name, prev))
			continue
		}
		names[d.Name] = d.Pos
		if d.Subject == resolver.SubjectExpr {
			if prev, ok := exprs[d.Expr]; ok {
				errs = append(errs, fmt.Errorf("gen: %s: type expression %s already has an identity from %s", d.Pos, d.Expr, prev))
				continue
			}
			exprs[d.Expr] = d.Name
		}
		if prev, ok := seeds[r.Seed]; ok {
			errs = append(errs, fmt.Errorf("gen: %s: seed %s of %s is also used by %s", d.Pos, r.Seed, d.Name, prev))
			continue
		}
		seeds[r.Seed] = d.Name
		if _, err := ShapeOf(r, cfg.Form); err != nil {
			errs = append(errs, err)
			continue
		}
		res = append(res, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	src, err := Emit(pkg.Name, res, cfg)
	if err != nil {
		return nil, err
	}
	out := &Result{
		Package:     pkg,
		Resolutions: res,
		OutputPath:  filepath.Join(dir, cfg.Output),
		Source:      src,
	}
	if !cfg.LockEnabled() {
		return out, nil
	}

	next := manifest.Manifest{
		Version: manifest.Version,
		Mix:     compose.MixName,
		Package: pkg.ImportPath,
		Entries: make([]manifest.Entry, len(res)),
	}
	for i, r := range res {
		next.Entries[i] = manifest.Entry{
			Type: manifest.EntryType(r.Decl.Name, r.Decl.ParamNames()),
			Seed: r.Seed,
		}
	}
	lock, id, err := manifest.RenderWithCID(next)
	if err != nil {
		return nil, err
	}
	out.LockPath = cfg.Lock
	if !filepath.IsAbs(out.LockPath) {
		out.LockPath = filepath.Join(dir, out.LockPath)
	}
	out.Lock = lock
	out.LockCID = id

	prevBytes, err := os.ReadFile(out.LockPath)
	switch {
	case os.IsNotExist(err):
		log.Debug("no lock yet", "path", out.LockPath)
	case err != nil:
		return nil, err
	default:
		prev, err := manifest.Parse(prevBytes)
		if err != nil {
			return nil, fmt.Errorf("gen: %s: %w", filepath.Base(out.LockPath), err)
		}
		if drift := manifest.Diff(prev, &next); len(drift) > 0 {
			return nil, &DriftError{Lock: filepath.Base(out.LockPath), Drift: drift}
		}
	}
	return out, nil
}

func writeIfChanged(path string, data []byte) (bool, error) {
	cur, err := os.ReadFile(path)
	if err == nil && bytes.Equal(cur, data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
