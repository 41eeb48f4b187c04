package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/mattn/go-isatty"

	"xdao.co/typeuuid/compose"
	"xdao.co/typeuuid/gen"
	"xdao.co/typeuuid/identity"
	"xdao.co/typeuuid/manifest"
	"xdao.co/typeuuid/resolver"
	"xdao.co/typeuuid/storage"
	"xdao.co/typeuuid/storage/bundle"
	"xdao.co/typeuuid/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "gen":
		return cmdGen(args[1:], out, errOut, false)
	case "check":
		return cmdGen(args[1:], out, errOut, true)
	case "compose":
		return cmdCompose(args[1:], out, errOut)
	case "manifest":
		return cmdManifest(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "typeuuid: composite 128-bit type identities")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  typeuuid gen [--dir <pkg>] [--config <typeuuid.yaml>] [-v]")
	fmt.Fprintln(w, "  typeuuid check [--dir <pkg>] [--config <typeuuid.yaml>] [-v]")
	fmt.Fprintln(w, "  typeuuid compose (--seed <uuid> | --decl 'Name[T, ...], \"<uuid>\"') [--param <uuid> ...] [--format uuid|hex|decimal|go]")
	fmt.Fprintln(w, "  typeuuid manifest cid <file>")
	fmt.Fprintln(w, "  typeuuid manifest diff --old <file> --new <file>")
	fmt.Fprintln(w, "  typeuuid manifest show --archive <dir> [--archive <dir> ...] (--package <path> | --cid <CID>)")
	fmt.Fprintln(w, "  typeuuid manifest export --archive <dir> --package <path> [--package ...] > bundle.tar")
	fmt.Fprintln(w, "  typeuuid manifest import --archive <dir> <bundle.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - gen reads <pkg>/typeuuid.yaml when --config is not given")
	fmt.Fprintln(w, "  - gen refuses to change a seed or arity already recorded in the lock")
	fmt.Fprintln(w, "  - check exits 1 when the generated file or the lock is stale")
	fmt.Fprintln(w, "  - --param values are bound to generic slots in declaration order")
}

// newLogger writes text records to a terminal and JSON otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func cmdGen(args []string, out io.Writer, errOut io.Writer, check bool) int {
	name := "gen"
	if check {
		name = "check"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)

	var dir string
	var configPath string
	var verbose bool
	fs.StringVar(&dir, "dir", ".", "Package directory")
	fs.StringVar(&configPath, "config", "", "Config file (default <dir>/typeuuid.yaml if present)")
	fs.BoolVar(&verbose, "v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(errOut, "usage: typeuuid %s [--dir <pkg>] [--config <file>] [-v]\n", name)
		return 2
	}

	var (
		cfg gen.Config
		err error
	)
	if configPath != "" {
		cfg, err = gen.LoadFile(configPath)
	} else {
		cfg, err = gen.LoadDir(dir)
	}
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	opts := gen.Options{Logger: newLogger(errOut, verbose)}

	if check {
		if _, err := gen.Check(ctx, dir, cfg, opts); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		return 0
	}
	res, err := gen.Generate(ctx, dir, cfg, opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, p := range res.Written {
		_, _ = fmt.Fprintln(out, p)
	}
	return 0
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdCompose(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var seedText string
	var declText string
	var paramTexts stringList
	var format string
	fs.StringVar(&seedText, "seed", "", "Seed identity")
	fs.StringVar(&declText, "decl", "", "Declaration in the form 'Name[T, ...], \"uuid\"'")
	fs.Var(&paramTexts, "param", "Parameter identity (repeatable, in slot order)")
	fs.StringVar(&format, "format", "uuid", "Output format: uuid, hex, decimal or go")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (seedText == "") == (declText == "") || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: typeuuid compose (--seed <uuid> | --decl 'Name[T, ...], \"<uuid>\"') [--param <uuid> ...]")
		return 2
	}

	params := make([]identity.Identity, len(paramTexts))
	for i, p := range paramTexts {
		id, err := identity.Parse(p)
		if err != nil {
			fmt.Fprintf(errOut, "--param %q: %v\n", p, err)
			return 2
		}
		params[i] = id
	}

	var result identity.Identity
	if seedText != "" {
		seed, err := identity.Parse(seedText)
		if err != nil {
			fmt.Fprintf(errOut, "--seed %q: %v\n", seedText, err)
			return 2
		}
		result = compose.NewInput(seed, params...).Compose()
	} else {
		d, err := resolver.ParseImpl(declText)
		if err != nil {
			fmt.Fprintf(errOut, "--decl: %v\n", err)
			return 2
		}
		r, err := resolver.Resolve(d)
		if err != nil {
			fmt.Fprintf(errOut, "--decl: %v\n", err)
			return 1
		}
		result, err = r.Compose(params...)
		if err != nil {
			fmt.Fprintf(errOut, "compose: %v\n", err)
			return 1
		}
	}

	s, err := formatIdentity(result, format)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	_, _ = fmt.Fprintln(out, s)
	return 0
}

func formatIdentity(id identity.Identity, format string) (string, error) {
	switch format {
	case "uuid":
		return id.String(), nil
	case "hex":
		return hex.EncodeToString(id[:]), nil
	case "decimal":
		return id.Uint128().String(), nil
	case "go":
		return "typeuuid.Identity{" + id.GoLiteral() + "}", nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func cmdManifest(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: typeuuid manifest <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: cid, diff, show, export, import")
		return 2
	}
	switch args[0] {
	case "cid":
		fs := flag.NewFlagSet("manifest cid", flag.ContinueOnError)
		fs.SetOutput(errOut)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: typeuuid manifest cid <file>")
			return 2
		}
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read manifest: %v\n", err)
			return 1
		}
		id, err := manifest.CID(b)
		if err != nil {
			fmt.Fprintf(errOut, "invalid manifest: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	case "diff":
		fs := flag.NewFlagSet("manifest diff", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var oldPath, newPath string
		fs.StringVar(&oldPath, "old", "", "Previous manifest")
		fs.StringVar(&newPath, "new", "", "Next manifest")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if oldPath == "" || newPath == "" || fs.NArg() != 0 {
			fmt.Fprintln(errOut, "usage: typeuuid manifest diff --old <file> --new <file>")
			return 2
		}
		prev, err := readManifest(oldPath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		next, err := readManifest(newPath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		drift := manifest.Diff(prev, next)
		for _, d := range drift {
			_, _ = fmt.Fprintln(out, d)
		}
		if len(drift) > 0 {
			return 1
		}
		return 0
	case "show":
		fs := flag.NewFlagSet("manifest show", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var archives stringList
		var pkg, cidText string
		fs.Var(&archives, "archive", "Archive directory (localfs CAS, repeatable, searched in order)")
		fs.StringVar(&pkg, "package", "", "Package path the lock was archived under")
		fs.StringVar(&cidText, "cid", "", "Manifest CID")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if len(archives) == 0 || (pkg == "") == (cidText == "") || fs.NArg() != 0 {
			fmt.Fprintln(errOut, "usage: typeuuid manifest show --archive <dir> [--archive <dir> ...] (--package <path> | --cid <CID>)")
			return 2
		}
		var cas storage.MultiCAS
		for _, dir := range archives {
			local, err := localfs.New(dir)
			if err != nil {
				fmt.Fprintf(errOut, "open archive: %v\n", err)
				return 1
			}
			cas.Adapters = append(cas.Adapters, local)
		}
		var (
			id  cid.Cid
			err error
		)
		if cidText != "" {
			id, err = cid.Decode(cidText)
		} else {
			id, err = cas.Ref(pkg)
		}
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(errOut, "no archived manifest for %s\n", pkg)
				return 1
			}
			fmt.Fprintf(errOut, "resolve manifest: %v\n", err)
			return 1
		}
		b, err := cas.Get(id)
		if err != nil {
			fmt.Fprintf(errOut, "get %s: %v\n", id, err)
			return 1
		}
		_, _ = out.Write(b)
		return 0
	case "export":
		fs := flag.NewFlagSet("manifest export", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var archive string
		var pkgs stringList
		fs.StringVar(&archive, "archive", "", "Archive directory (localfs CAS)")
		fs.Var(&pkgs, "package", "Package path to export (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if archive == "" || len(pkgs) == 0 || fs.NArg() != 0 {
			fmt.Fprintln(errOut, "usage: typeuuid manifest export --archive <dir> --package <path> [--package ...] > bundle.tar")
			return 2
		}
		cas, err := localfs.New(archive)
		if err != nil {
			fmt.Fprintf(errOut, "open archive: %v\n", err)
			return 1
		}
		var buf bytes.Buffer
		if err := bundle.Export(&buf, cas, pkgs); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = out.Write(buf.Bytes())
		return 0
	case "import":
		fs := flag.NewFlagSet("manifest import", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var archive string
		fs.StringVar(&archive, "archive", "", "Archive directory (localfs CAS)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if archive == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: typeuuid manifest import --archive <dir> <bundle.tar>")
			return 2
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read bundle: %v\n", err)
			return 1
		}
		defer f.Close()
		cas, err := localfs.New(archive)
		if err != nil {
			fmt.Fprintf(errOut, "open archive: %v\n", err)
			return 1
		}
		refs, err := bundle.Import(f, cas)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		names := make([]string, 0, len(refs))
		for name := range refs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(out, "%s %s\n", name, refs[name])
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown manifest subcommand: %s\n", args[0])
		return 2
	}
}

func readManifest(path string) (*manifest.Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
