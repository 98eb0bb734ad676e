package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"
)

const (
	programFile  = "program.yaml"
	expectedFile = "expected.yaml"
)

// LoadTestCase loads a test case from a txtar archive holding program.yaml
// and expected.yaml.
func LoadTestCase(t *testing.T, path string) *TestCase {
	t.Helper()

	ar, err := txtar.ParseFile(path)
	require.NoError(t, err)

	tc, err := parseArchive(ar)
	require.NoError(t, err, "archive %s", path)
	tc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return tc
}

func parseArchive(ar *txtar.Archive) (*TestCase, error) {
	tc := &TestCase{Comment: strings.TrimSpace(string(ar.Comment))}
	var sawExpected bool
	for _, f := range ar.Files {
		switch f.Name {
		case programFile:
			tc.Program = f.Data
		case expectedFile:
			if err := yaml.Unmarshal(f.Data, tc); err != nil {
				return nil, fmt.Errorf("%s: %w", expectedFile, err)
			}
			sawExpected = true
		default:
			return nil, fmt.Errorf("unexpected file %s", f.Name)
		}
	}
	if tc.Program == nil {
		return nil, fmt.Errorf("missing %s", programFile)
	}
	if !sawExpected {
		return nil, fmt.Errorf("missing %s", expectedFile)
	}
	return tc, nil
}

// DiscoverTestCases loads every archive in root.
func DiscoverTestCases(t *testing.T, root string) []*TestCase {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var testCases []*TestCase
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txtar" {
			continue
		}
		testCases = append(testCases, LoadTestCase(t, filepath.Join(root, entry.Name())))
	}
	return testCases
}
