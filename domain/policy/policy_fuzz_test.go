package policy_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/policy"
)

// FuzzBinding_CheckFileSystem checks that no input path escapes the granted
// directory: every allowed path must be the grant root or live under it
// after cleaning.
func FuzzBinding_CheckFileSystem(f *testing.F) {
	doc := entities.NewPolicyDocument("fuzz")
	doc.GrantStorage("fs:///data", []entities.AccessType{entities.AccessRead})
	binding, err := policy.Compile("fuzz", doc,
		policy.WithDenialHandler(&policy.NopDenialHandler{}),
		policy.WithSymlinkResolution(false),
	)
	if err != nil {
		f.Fatal(err)
	}

	f.Add("/data/file.txt")
	f.Add("/data/../etc/passwd")
	f.Add("/data/./..")
	f.Add("../data")
	f.Add("/database/file")

	f.Fuzz(func(t *testing.T, path string) {
		if err := binding.CheckFileSystem(path, "read"); err == nil {
			cleaned := filepath.Clean(path)
			if cleaned != "/data" && !strings.HasPrefix(cleaned, "/data/") {
				t.Errorf("path %q (cleaned %q) escaped the grant", path, cleaned)
			}
		}
	})
}
