// Package loader builds SSA programs from Go packages on disk or from
// in-memory source.
package loader

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"sort"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// ErrNoPackages is returned when the patterns match nothing.
var ErrNoPackages = errors.New("no packages matched")

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes

// Program is a built SSA program together with the packages that were
// requested and the Go files they were compiled from.
type Program struct {
	Prog     *ssa.Program
	Packages []*ssa.Package
	Files    []string
}

// Load type-checks the packages matching patterns, relative to dir, and
// builds SSA for them and their dependencies.
func Load(ctx context.Context, dir string, patterns ...string) (*Program, error) {
	cfg := &packages.Config{
		Mode:    loadMode,
		Context: ctx,
		Dir:     dir,
		Tests:   false,
	}
	initial, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoPackages, patterns)
	}

	var errs []error
	packages.Visit(initial, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e)
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("packages contain errors: %w", errors.Join(errs...))
	}

	prog, pkgs := ssautil.AllPackages(initial, ssa.InstantiateGenerics)
	prog.Build()

	var files []string
	for _, p := range initial {
		files = append(files, p.CompiledGoFiles...)
	}
	sort.Strings(files)

	return &Program{Prog: prog, Packages: nonNil(pkgs), Files: files}, nil
}

// FromSource builds SSA for a single package parsed from src. Imports are
// resolved against the installed standard library.
func FromSource(filename, src string) (*Program, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	pkg := types.NewPackage(f.Name.Name, f.Name.Name)
	conf := &types.Config{Importer: importer.Default()}
	ssaPkg, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", filename, err)
	}
	return &Program{
		Prog:     ssaPkg.Prog,
		Packages: []*ssa.Package{ssaPkg},
		Files:    []string{filename},
	}, nil
}

// Functions returns every function with a body that belongs to one of the
// requested packages, including methods, closures and instantiations.
func (p *Program) Functions() []*ssa.Function {
	wanted := make(map[*ssa.Package]bool, len(p.Packages))
	for _, pkg := range p.Packages {
		wanted[pkg] = true
	}

	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(p.Prog) {
		if fn.Blocks == nil {
			continue
		}
		if pkg := owner(fn); pkg != nil && wanted[pkg] {
			fns = append(fns, fn)
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })
	return fns
}

// Symbols returns the qualified names of every function known to the
// program, declarations included.
func (p *Program) Symbols() []string {
	var out []string
	for fn := range ssautil.AllFunctions(p.Prog) {
		out = append(out, fn.String())
	}
	for _, pkg := range p.Prog.AllPackages() {
		for _, m := range pkg.Members {
			if fn, ok := m.(*ssa.Function); ok {
				out = append(out, fn.String())
			}
		}
	}
	sort.Strings(out)
	return dedupe(out)
}

// owner returns the package a function's code belongs to. Closures and
// instantiations report the package of their enclosing or generic origin.
func owner(fn *ssa.Function) *ssa.Package {
	for fn != nil {
		if fn.Pkg != nil {
			return fn.Pkg
		}
		if fn.Parent() != nil {
			fn = fn.Parent()
			continue
		}
		fn = fn.Origin()
	}
	return nil
}

func nonNil(pkgs []*ssa.Package) []*ssa.Package {
	out := pkgs[:0:0]
	for _, p := range pkgs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
