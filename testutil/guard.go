// Package testutil holds test helpers that enforce the import layering of the
// repository: the domain stays free of infrastructure, services never reach
// into the CLI, and only facade packages wrap infra drivers.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "supplyledger"

// TB is the subset of testing.TB the guards need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Under returns a predicate matching prefix and every package below it.
func Under(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// ThirdParty reports whether path belongs to a module outside the standard
// library and outside this module.
func ThirdParty(path string) bool {
	if Under(ModulePath)(path) {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// InternalImport matches any package of this module under internal/.
func InternalImport(path string) bool {
	return Under(ModulePath + "/internal")(path)
}

// Rule forbids packages matching From from importing packages matching
// Forbid. Packages matching Except are exempt from the rule.
type Rule struct {
	From   func(string) bool
	Forbid func(string) bool
	Except func(string) bool
	Reason string
}

// AssertNoDirectImports parses the non-test .go files directly in dir and
// fails when an import satisfies forbidden. Subdirectories are not scanned.
func AssertNoDirectImports(t TB, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	viols, err := DirectImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// DirectImportViolations lists "import (in file)" for each offending import.
func DirectImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range file.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

var loadPackages = func(patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	return packages.Load(cfg, patterns...)
}

// AssertLayering loads the packages named by pattern and checks every rule
// against their direct imports.
func AssertLayering(t TB, pattern string, rules ...Rule) {
	t.Helper()
	pkgs, err := loadPackages(pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	imports := make(map[string][]string, len(pkgs))
	for _, pkg := range pkgs {
		for path := range pkg.Imports {
			imports[pkg.PkgPath] = append(imports[pkg.PkgPath], path)
		}
	}
	if viols := LayeringViolations(imports, rules...); len(viols) > 0 {
		t.Fatalf("layering violations:\n%s", strings.Join(viols, "\n"))
	}
}

// LayeringViolations evaluates rules against a package → imports map.
func LayeringViolations(imports map[string][]string, rules ...Rule) []string {
	var viols []string
	for pkg, deps := range imports {
		for _, rule := range rules {
			if !rule.From(pkg) || (rule.Except != nil && rule.Except(pkg)) {
				continue
			}
			for _, dep := range deps {
				if rule.Forbid(dep) {
					viols = append(viols, fmt.Sprintf("%s imports %s: %s", pkg, dep, rule.Reason))
				}
			}
		}
	}
	sort.Strings(viols)
	return viols
}
