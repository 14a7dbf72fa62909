package domain_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDomainHasNoExternalDependencies verifies that the domain layer
// does not import from the host or infrastructure layers.
// This is a critical hexagonal architecture requirement.
func TestDomainHasNoExternalDependencies(t *testing.T) {
	domainPath := "../domain"

	fset := token.NewFileSet()

	for _, pkg := range []string{"entities", "errors", "ports", "policy"} {
		pattern := filepath.Join(domainPath, pkg, "*.go")
		files, err := filepath.Glob(pattern)
		require.NoError(t, err, "failed to glob %s files", pkg)

		for _, file := range files {
			// Skip test files (they can import testing and testify)
			if strings.HasSuffix(file, "_test.go") {
				continue
			}
			checkFileImports(t, fset, file, pkg)
		}
	}
}

func checkFileImports(t *testing.T, fset *token.FileSet, filename, pkg string) {
	t.Helper()

	f, err := parser.ParseFile(fset, filename, nil, parser.ImportsOnly)
	require.NoError(t, err, "failed to parse %s", filename)

	for _, imp := range f.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)

		forbiddenPackages := []string{
			"github.com/yoktobit/wassette/host",
			"github.com/yoktobit/wassette/hostfuncs",
			"github.com/yoktobit/wassette/infrastructure",
			"github.com/yoktobit/wassette/cmd",
			"github.com/yoktobit/wassette/internal",
		}

		for _, forbidden := range forbiddenPackages {
			assert.NotContains(t, importPath, forbidden,
				"domain/%s package (%s) must not import from %s (violates hexagonal architecture)",
				pkg, filepath.Base(filename), forbidden)
		}

		// Domain packages may only reach other domain packages within
		// this module. Standard library and third-party imports are
		// fine as long as they stay out of the outer layers.
		if strings.Contains(importPath, "github.com/yoktobit/wassette/") {
			assert.True(t,
				strings.Contains(importPath, "/domain/"),
				"domain/%s package (%s) imports non-domain package: %s",
				pkg, filepath.Base(filename), importPath)
		}
	}
}

// TestDomainPackagesExist verifies that required domain packages exist
func TestDomainPackagesExist(t *testing.T) {
	domainPath := "../domain"

	requiredDirs := []string{"entities", "errors", "ports", "policy"}

	for _, dir := range requiredDirs {
		pattern := filepath.Join(domainPath, dir, "*.go")
		files, err := filepath.Glob(pattern)

		require.NoError(t, err, "failed to check %s directory", dir)
		assert.NotEmpty(t, files, "domain/%s should contain Go files", dir)
	}
}
