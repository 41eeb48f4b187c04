package gen

import (
	"context"
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ast/astutil"

	"xdao.co/typeuuid/resolver"
)

// DirectivePrefix marks attribute lines in a type's doc comment:
//
//	//typeuuid:uuid = "a0b1c2d3-e4f5-4607-8819-2a3b4c5d6e7f"
//	type Widget struct{ ... }
const DirectivePrefix = "//typeuuid:"

// Package is the scan result for one directory.
type Package struct {
	Name       string // Go package name
	ImportPath string // recorded in the lock: cfg.Package, or Name when unset
	Dir        string
	Files      []string
	Decls      []resolver.Declaration
}

// Scan parses the Go files of dir and returns every type declaration
// carrying at least one directive, plus the declarations configured in
// cfg.Impls. Test files, files excluded by build constraints and the
// generated output are skipped. Declarations are ordered by file name, then
// source offset, then configuration order.
func Scan(ctx context.Context, dir string, cfg Config) (*Package, error) {
	cfg = cfg.WithDefaults()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || name == cfg.Output {
			continue
		}
		ok, err := build.Default.MatchFile(dir, name)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("gen: no Go files in %s", dir)
	}

	fset := token.NewFileSet()
	parsed := make([]*ast.File, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments|parser.SkipObjectResolution)
			if err != nil {
				return err
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pkg := &Package{Dir: dir, Files: files}
	for i, f := range parsed {
		switch {
		case pkg.Name == "":
			pkg.Name = f.Name.Name
		case pkg.Name != f.Name.Name:
			return nil, fmt.Errorf("gen: %s: found packages %s and %s", files[i], pkg.Name, f.Name.Name)
		}
	}
	pkg.ImportPath = cfg.Package
	if pkg.ImportPath == "" {
		pkg.ImportPath = pkg.Name
	}

	for i, f := range parsed {
		decls, err := scanFile(fset, files[i], f)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			d.Package = pkg.ImportPath
			pkg.Decls = append(pkg.Decls, d)
		}
	}

	for i, impl := range cfg.Impls {
		d, err := implDeclaration(i, impl)
		if err != nil {
			return nil, err
		}
		d.Package = pkg.ImportPath
		pkg.Decls = append(pkg.Decls, d)
	}
	return pkg, nil
}

func scanFile(fset *token.FileSet, name string, f *ast.File) ([]resolver.Declaration, error) {
	var out []resolver.Declaration
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			doc := ts.Doc
			if doc == nil && !gd.Lparen.IsValid() {
				doc = gd.Doc
			}
			attrs := directives(doc)
			if len(attrs) == 0 {
				continue
			}
			pos := fmt.Sprintf("%s:%d", name, fset.Position(ts.Pos()).Line)
			if ts.Assign.IsValid() {
				return nil, fmt.Errorf("gen: %s: %s is an alias; annotate the aliased type instead", pos, ts.Name.Name)
			}
			switch t := astutil.Unparen(ts.Type).(type) {
			case *ast.InterfaceType:
				return nil, fmt.Errorf("gen: %s: %s is an interface type and cannot carry a TypeUUID method", pos, ts.Name.Name)
			case *ast.StarExpr:
				return nil, fmt.Errorf("gen: %s: %s is a pointer type (*%s) and cannot carry a TypeUUID method", pos, ts.Name.Name, types.ExprString(t.X))
			}
			d := resolver.Declaration{
				Name:       ts.Name.Name,
				Subject:    resolver.SubjectNamed,
				Attributes: attrs,
				Pos:        pos,
			}
			if ts.TypeParams != nil {
				for _, field := range ts.TypeParams.List {
					constraint := types.ExprString(field.Type)
					for _, n := range field.Names {
						d.TypeParams = append(d.TypeParams, resolver.TypeParam{Name: n.Name, Constraint: constraint})
					}
				}
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// directives returns the attribute text of every directive line in doc.
func directives(doc *ast.CommentGroup) []string {
	if doc == nil {
		return nil
	}
	var out []string
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, DirectivePrefix) {
			continue
		}
		out = append(out, strings.TrimSpace(c.Text[len(DirectivePrefix):]))
	}
	return out
}

func implDeclaration(i int, impl ImplConfig) (resolver.Declaration, error) {
	pos := fmt.Sprintf("%s impls[%d]", ConfigFile, i)
	d, err := resolver.ParseImpl(impl.Decl)
	if err != nil {
		return resolver.Declaration{}, fmt.Errorf("gen: %s: %w", pos, err)
	}
	d.Pos = pos
	if impl.Type != "" {
		expr, err := parser.ParseExpr(impl.Type)
		if err != nil {
			return resolver.Declaration{}, fmt.Errorf("gen: %s: type %q: %w", pos, impl.Type, err)
		}
		d.Subject = resolver.SubjectExpr
		d.Expr = types.ExprString(expr)
	}
	return d, nil
}
