// Package testutil provides helpers for enforcing architectural boundaries:
// which packages may import what, and which packages may implement the
// persistence contract.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports parses every non-test .go file in dir and fails the
// test when an import path satisfies the forbidden predicate. Build tags are
// not honored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	violations, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(violations) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(violations, "\n"))
	}
}

// AssertNoTransitiveDependency runs `go list -deps` over the pattern and
// fails when any dependency path satisfies the forbidden predicate.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, out)
	}
	var violations []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && forbidden(line) {
			violations = append(violations, line)
		}
	}
	if len(violations) > 0 {
		t.Fatalf("forbidden transitive dependencies (%s):\n%s", reason, strings.Join(violations, "\n"))
	}
}

// InternalImportForbidden matches any import path under an internal tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// PersistenceImportForbidden matches direct imports of concrete persistence
// backends; callers above the storage layer go through domain.PersistentStore.
func PersistenceImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/persistence/")
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var violations []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				violations = append(violations, path+" (in "+name+")")
			}
		}
	}
	return violations, nil
}
