package gen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/typeuuid/identity"
	"xdao.co/typeuuid/manifest"
	"xdao.co/typeuuid/resolver"
	"xdao.co/typeuuid/storage/localfs"
)

const shapesSrc = `package shapes

import "xdao.co/typeuuid/typeuuid"

// Widget is a thing.
//
//typeuuid:uuid = "0f0e0d0c-0b0a-0908-0706-050403020100"
type Widget struct{}

//typeuuid:uuid = "12345678-1234-1234-1234-123456789abc"
type Pair[A, B typeuuid.HasIdentity] struct {
	First  A
	Second B
}

type (
	//typeuuid:uuid = "a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f"
	Box[T any] struct{ V T }

	plain int
)
`

func writePkg(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func shapesDir(t *testing.T) string {
	return writePkg(t, map[string]string{
		"shapes.go":       shapesSrc,
		"shapes_test.go":  "this is not go",
		"typeuuid_gen.go": "neither is this",
		"ignored.go":      "//go:build never\n\npackage other\n",
	})
}

func TestScan_FindsAnnotatedTypes(t *testing.T) {
	pkg, err := Scan(context.Background(), shapesDir(t), Config{Package: "example.com/shapes"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if pkg.Name != "shapes" || pkg.ImportPath != "example.com/shapes" {
		t.Fatalf("package: %s %s", pkg.Name, pkg.ImportPath)
	}
	if len(pkg.Files) != 1 || pkg.Files[0] != "shapes.go" {
		t.Fatalf("files: %v", pkg.Files)
	}
	var names []string
	for _, d := range pkg.Decls {
		names = append(names, d.String())
	}
	if got := strings.Join(names, " "); got != "Widget Pair[A, B] Box[T]" {
		t.Fatalf("decls: %s", got)
	}
	w := pkg.Decls[0]
	if w.Pos != "shapes.go:8" || len(w.Attributes) != 1 || w.Attributes[0] != `uuid = "0f0e0d0c-0b0a-0908-0706-050403020100"` {
		t.Fatalf("Widget: %+v", w)
	}
	if c := pkg.Decls[1].TypeParams[1].Constraint; c != "typeuuid.HasIdentity" {
		t.Fatalf("Pair constraint: %q", c)
	}
	if c := pkg.Decls[2].TypeParams[0].Constraint; c != "any" {
		t.Fatalf("Box constraint: %q", c)
	}
}

func TestScan_Impls(t *testing.T) {
	dir := writePkg(t, map[string]string{"a.go": "package a\n"})
	cfg := Config{Impls: []ImplConfig{
		{Decl: `Slice[T], "6f9a2c1e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"`, Type: "[]T"},
	}}
	pkg, err := Scan(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pkg.Decls) != 1 {
		t.Fatalf("decls: %+v", pkg.Decls)
	}
	d := pkg.Decls[0]
	if d.Subject != resolver.SubjectExpr || d.Expr != "[]T" || d.Pos != "typeuuid.yaml impls[0]" {
		t.Fatalf("impl: %+v", d)
	}

	cfg.Impls[0].Type = "[]("
	if _, err := Scan(context.Background(), dir, cfg); err == nil {
		t.Fatalf("expected error for unparsable type expression")
	}
}

func TestScan_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"two packages": {"a.go": "package a\n", "b.go": "package b\n"},
		"alias":        {"a.go": "package a\n\n//typeuuid:uuid = \"0f0e0d0c-0b0a-0908-0706-050403020100\"\ntype A = int\n"},
		"interface":    {"a.go": "package a\n\n//typeuuid:uuid = \"0f0e0d0c-0b0a-0908-0706-050403020100\"\ntype I interface{ M() }\n"},
		"pointer":      {"a.go": "package a\n\n//typeuuid:uuid = \"0f0e0d0c-0b0a-0908-0706-050403020100\"\ntype P *int\n"},
		"syntax":       {"a.go": "package a\n\ntype\n"},
		"empty":        {"a_test.go": "package a\n"},
	}
	for name, files := range cases {
		if _, err := Scan(context.Background(), writePkg(t, files), Config{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestShapeOf(t *testing.T) {
	resolve := func(d resolver.Declaration) *resolver.Resolution {
		d.Attributes = []string{`uuid = "0f0e0d0c-0b0a-0908-0706-050403020100"`}
		r, err := resolver.Resolve(d)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		return r
	}
	plain := resolve(resolver.Declaration{Name: "W"})
	bounded := resolve(resolver.Declaration{Name: "P", TypeParams: []resolver.TypeParam{{Name: "A", Constraint: "typeuuid.HasIdentity"}}})
	open := resolve(resolver.Declaration{Name: "B", TypeParams: []resolver.TypeParam{{Name: "T", Constraint: "any"}}})
	expr := resolve(resolver.Declaration{Name: "S", Subject: resolver.SubjectExpr, Expr: "[]T", TypeParams: []resolver.TypeParam{{Name: "T"}}})

	cases := []struct {
		r    *resolver.Resolution
		form Form
		want Shape
	}{
		{plain, FormAuto, ShapeMethod},
		{plain, FormFunc, ShapeMethod},
		{bounded, FormAuto, ShapeMethod},
		{bounded, FormFunc, ShapeFunc},
		{open, FormAuto, ShapeFunc},
		{bounded, FormMethod, ShapeMethod},
		{plain, FormMethod, ShapeMethod},
		{expr, FormAuto, ShapeFunc},
	}
	for _, tc := range cases {
		got, err := ShapeOf(tc.r, tc.form)
		if err != nil || got != tc.want {
			t.Fatalf("%s/%s: got %v, %v want %v", tc.r.Decl, tc.form, got, err, tc.want)
		}
	}
	if _, err := ShapeOf(expr, FormMethod); err == nil {
		t.Fatalf("expected error for method form on a type expression")
	}
	_, err := ShapeOf(open, FormMethod)
	if err == nil || !strings.Contains(err.Error(), "type parameter T of B") {
		t.Fatalf("method form on an unconstrained parameter: got %v", err)
	}
}

const shapesGolden = `// Code generated by typeuuid. DO NOT EDIT.

package shapes

import typeuuid "xdao.co/typeuuid/typeuuid"

// 0f0e0d0c-0b0a-0908-0706-050403020100
var widgetTypeUUID = typeuuid.Identity{0x0f, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x00}

// TypeUUID returns the type identity of Widget.
func (Widget) TypeUUID() typeuuid.Identity {
	return widgetTypeUUID
}

// 12345678-1234-1234-1234-123456789abc
var pairTypeUUIDSeed = typeuuid.Identity{0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x12, 0x34, 0x12, 0x34, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc}

// TypeUUID returns the type identity of Pair[A, B].
func (Pair[A, B]) TypeUUID() typeuuid.Identity {
	return typeuuid.Instantiate[Pair[A, B]](pairTypeUUIDSeed, typeuuid.Of[A], typeuuid.Of[B])
}

// a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f
var boxTypeUUIDSeed = typeuuid.Identity{0xa0, 0xb1, 0xc2, 0xd3, 0xe4, 0xf5, 0x46, 0x07, 0x88, 0x19, 0x2a, 0x3b, 0x4c, 0x5d, 0x6e, 0x7f}

// BoxTypeUUID returns the type identity of Box[T].
func BoxTypeUUID[T typeuuid.HasIdentity]() typeuuid.Identity {
	return typeuuid.Instantiate[Box[T]](boxTypeUUIDSeed, typeuuid.Of[T])
}
`

func TestGenerate_WritesOutputAndLock(t *testing.T) {
	dir := shapesDir(t)
	cfg := Config{Package: "example.com/shapes", Archive: ".typeuuid"}

	res, err := Generate(context.Background(), dir, cfg, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(res.Source) != shapesGolden {
		t.Fatalf("generated source mismatch:\n%s", res.Source)
	}
	if len(res.Written) != 2 {
		t.Fatalf("written: %v", res.Written)
	}
	got, err := os.ReadFile(filepath.Join(dir, "typeuuid_gen.go"))
	if err != nil || string(got) != shapesGolden {
		t.Fatalf("output on disk: %v", err)
	}

	lock, err := os.ReadFile(filepath.Join(dir, "typeuuid.lock"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	m, err := manifest.Parse(lock)
	if err != nil {
		t.Fatalf("lock Parse: %v", err)
	}
	if m.Package != "example.com/shapes" || len(m.Entries) != 3 || m.Entries[0].Type != "Box[T]" {
		t.Fatalf("lock: %+v", m)
	}

	cas, err := localfs.New(filepath.Join(dir, ".typeuuid"))
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	ref, err := cas.Ref("example.com/shapes")
	if err != nil || ref != res.LockCID || res.Archived != res.LockCID {
		t.Fatalf("archive ref: %s %v (lock %s)", ref, err, res.LockCID)
	}

	again, err := Generate(context.Background(), dir, cfg, Options{})
	if err != nil {
		t.Fatalf("Generate(2): %v", err)
	}
	if len(again.Written) != 0 {
		t.Fatalf("second run rewrote %v", again.Written)
	}
	if _, err := Check(context.Background(), dir, cfg, Options{}); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestGenerate_ComposesLikeRuntime(t *testing.T) {
	res, err := Generate(context.Background(), shapesDir(t), Config{Lock: "-"}, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Lock != nil || res.LockPath != "" {
		t.Fatalf("lock written while disabled")
	}
	pair := res.Resolutions[1]
	got, err := pair.Compose(
		identity.MustParse("a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f"),
		identity.MustParse("0f0e0d0c-0b0a-0908-0706-050403020100"),
	)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got.String() != "58b82030-d15f-9e42-599e-261ec98049bc" {
		t.Fatalf("Pair composite: %s", got)
	}
}

func TestGenerate_DriftIsRejected(t *testing.T) {
	dir := shapesDir(t)
	if _, err := Generate(context.Background(), dir, Config{}, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, "typeuuid_gen.go"))

	changed := strings.Replace(shapesSrc, "0f0e0d0c-0b0a-0908-0706-050403020100", "99999999-9999-9999-9999-999999999999", 1)
	if err := os.WriteFile(filepath.Join(dir, "shapes.go"), []byte(changed), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Generate(context.Background(), dir, Config{}, Options{})
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected DriftError, got %v", err)
	}
	if len(drift.Drift) != 1 || drift.Drift[0].Kind != manifest.DriftSeedChanged || drift.Drift[0].Type != "Widget" {
		t.Fatalf("drift: %v", drift.Drift)
	}
	after, _ := os.ReadFile(filepath.Join(dir, "typeuuid_gen.go"))
	if string(before) != string(after) {
		t.Fatalf("output rewritten despite drift")
	}
}

func TestCheck_Stale(t *testing.T) {
	dir := shapesDir(t)
	if _, err := Check(context.Background(), dir, Config{}, Options{}); !errors.Is(err, ErrStale) {
		t.Fatalf("Check before Generate: got %v want ErrStale", err)
	}
	if _, err := Generate(context.Background(), dir, Config{}, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "typeuuid_gen.go"), []byte("package shapes\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Check(context.Background(), dir, Config{}, Options{})
	if !errors.Is(err, ErrStale) || !strings.Contains(err.Error(), "typeuuid_gen.go") {
		t.Fatalf("Check: got %v", err)
	}
}

func TestGenerate_ReportsEveryFailure(t *testing.T) {
	src := `package bad

//typeuuid:derive
type Missing struct{}

//typeuuid:uuid = "not-a-uuid"
type Malformed struct{}

//typeuuid:uuid = "0f0e0d0c-0b0a-0908-0706-050403020100"
type First struct{}

//typeuuid:uuid = "0f0e0d0c-0b0a-0908-0706-050403020100"
type Second struct{}
`
	dir := writePkg(t, map[string]string{"bad.go": src})
	_, err := Generate(context.Background(), dir, Config{}, Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 3 {
		t.Fatalf("expected three joined errors, got %v", err)
	}
	kinds := map[resolver.Kind]bool{}
	for _, e := range joined.Unwrap() {
		var re *resolver.Error
		if errors.As(e, &re) {
			kinds[re.Kind] = true
		}
	}
	if !kinds[resolver.KindMissingIdentity] || !kinds[resolver.KindMalformedIdentity] {
		t.Fatalf("joined error missing kinds: %v", err)
	}
	if !strings.Contains(err.Error(), "also used by First") {
		t.Fatalf("duplicate seed not reported: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "typeuuid_gen.go")); !os.IsNotExist(statErr) {
		t.Fatalf("output written despite errors")
	}
}

func TestGenerate_MethodFormNeedsBound(t *testing.T) {
	dir := shapesDir(t)
	_, err := Generate(context.Background(), dir, Config{Form: FormMethod}, Options{})
	if err == nil || !strings.Contains(err.Error(), "type parameter T of Box") {
		t.Fatalf("expected an error naming Box's parameter, got %v", err)
	}
	if !strings.Contains(err.Error(), "shapes.go:") {
		t.Fatalf("error is not positioned: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "typeuuid_gen.go"))
	if string(got) != "neither is this" {
		t.Fatalf("output rewritten despite the error")
	}
}

func TestGenerate_DuplicateTypeExpression(t *testing.T) {
	dir := writePkg(t, map[string]string{"a.go": "package a\n"})
	cfg := Config{Impls: []ImplConfig{
		{Decl: `Slice[T], "6f9a2c1e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"`, Type: "[]T"},
		{Decl: `List[T], "1b2c3d4e-5f60-4718-8293-a4b5c6d7e8f9"`, Type: "[ ]T"},
	}}
	_, err := Generate(context.Background(), dir, cfg, Options{})
	if err == nil || !strings.Contains(err.Error(), "type expression []T already has an identity from Slice") {
		t.Fatalf("expected duplicate type expression error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	yml := "output: ids_gen.go\nform: func\nimpls:\n  - decl: 'Slice[T], \"6f9a2c1e-3b4d-4e5f-8a9b-0c1d2e3f4a5b\"'\n    type: \"[]T\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Output != "ids_gen.go" || cfg.Form != FormFunc || cfg.Lock != DefaultLock || cfg.Runtime != DefaultRuntime {
		t.Fatalf("cfg: %+v", cfg)
	}
	if len(cfg.Impls) != 1 || cfg.Impls[0].Type != "[]T" {
		t.Fatalf("impls: %+v", cfg.Impls)
	}

	byDir, err := LoadDir(dir)
	if err != nil || byDir.Output != "ids_gen.go" {
		t.Fatalf("LoadDir: %+v %v", byDir, err)
	}
	def, err := LoadDir(t.TempDir())
	if err != nil || def.Output != DefaultOutput || def.Form != FormAuto {
		t.Fatalf("LoadDir defaults: %+v %v", def, err)
	}
}

func TestLoadFile_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "outptu: x.go\n",
		"bad form":      "form: both\n",
		"not go":        "output: gen.txt\n",
		"test output":   "output: gen_test.go\n",
		"nested output": "output: sub/gen.go\n",
		"method expr":   "form: method\nimpls:\n  - decl: 'S[T], \"6f9a2c1e-3b4d-4e5f-8a9b-0c1d2e3f4a5b\"'\n    type: \"[]T\"\n",
		"empty decl":    "impls:\n  - type: \"[]T\"\n",
	}
	for name, yml := range cases {
		path := filepath.Join(t.TempDir(), ConfigFile)
		if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
