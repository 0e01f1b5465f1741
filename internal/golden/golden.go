// Package golden compares command output with golden files
// stored in testdata directories.
package golden

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Compare reports whether got matches the content of the golden file
// at path. If update is set, the file is overwritten with got instead.
func Compare(path string, update bool, got []byte) error {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, got, 0o640)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if bytes.Equal(got, want) {
		return nil
	}
	gotLines := bytes.Split(got, []byte("\n"))
	wantLines := bytes.Split(want, []byte("\n"))
	for i := range max(len(gotLines), len(wantLines)) {
		var g, w []byte
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if !bytes.Equal(g, w) {
			return fmt.Errorf("%s:%d: got %q, want %q", filepath.Base(path), i+1, g, w)
		}
	}
	return fmt.Errorf("%s: mismatch", filepath.Base(path))
}
