package golden

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCompare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testdata", "out.golden")
	if err := Compare(path, true, []byte("a\nb\n")); err != nil {
		t.Fatal(err)
	}
	if err := Compare(path, false, []byte("a\nb\n")); err != nil {
		t.Errorf("identical output: %v", err)
	}
	err := Compare(path, false, []byte("a\nc\n"))
	if err == nil || !strings.Contains(err.Error(), "out.golden:2") {
		t.Errorf("mismatch reported as %v", err)
	}
	if err := Compare(path, false, []byte("a\nb\nc\n")); err == nil {
		t.Error("extra line not reported")
	}
	if err := Compare(filepath.Join(t.TempDir(), "missing"), false, nil); err == nil {
		t.Error("missing golden file not reported")
	}
}
