package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// decodeState is the set of URs received by previous runs of the
// decode command.
type decodeState struct {
	Version int      `msgpack:"version"`
	Parts   []string `msgpack:"parts"`
}

const stateVersion = 1

// loadState reads the state file at path. A missing file results in
// an empty state.
func loadState(path string) (*decodeState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &decodeState{Version: stateVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read state file %q: %w", path, err)
	}
	st := new(decodeState)
	if err := msgpack.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("invalid state file %s: %w", path, err)
	}
	if st.Version != stateVersion {
		return nil, fmt.Errorf("state file %s has version %d, expected %d", path, st.Version, stateVersion)
	}
	return st, nil
}

// save writes the state atomically.
func (s *decodeState) save(path string) error {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
