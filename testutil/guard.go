// Package testutil provides reusable testing helpers: import-boundary guards
// and the shared behavioural contract every entity store backend must satisfy.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// ImportRule reports whether an import path is off limits.
type ImportRule func(importPath string) bool

// InternalImportForbidden matches any internal package, ours or a dependency's.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, "cloudmock/internal") || strings.Contains(path, "/internal/")
}

// DriverImportForbidden matches database and cloud SDK drivers that only
// backend packages may import.
func DriverImportForbidden(path string) bool {
	for _, prefix := range []string{"modernc.org/sqlite", "github.com/jackc/pgx", "github.com/aws/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Exact matches the listed import paths only.
func Exact(paths ...string) ImportRule {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(path string) bool {
		_, ok := set[path]
		return ok
	}
}

// AssertNoDirectImports parses the non-test .go files in dir (usually "."
// from inside the package under test) and fails when any import matches rule.
// Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, rule ImportRule, reason string) {
	t.Helper()
	viols, err := importViolations(dir, rule)
	if err != nil {
		t.Fatalf("scan imports: %v", err)
	}
	report(t, reason, viols)
}

func importViolations(dir string, rule ImportRule) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, path := range files {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			ip, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if rule(ip) {
				viols = append(viols, fmt.Sprintf("%s imports %s", filepath.Base(path), ip))
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
