package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestStateRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	st, err := loadState(path)
	require.NoError(t, err)
	assert.Equal(t, &decodeState{Version: stateVersion}, st)

	st.Parts = []string{"ur:bytes/1-2/aa", "ur:bytes/2-2/bb"}
	require.NoError(t, st.save(path))
	got, err := loadState(path)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestStateUnknownFields(t *testing.T) {
	// Files written with a type field still load.
	data, err := msgpack.Marshal(map[string]any{
		"version": stateVersion,
		"type":    "bytes",
		"parts":   []string{"ur:bytes/1-2/aa"},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	st, err := loadState(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ur:bytes/1-2/aa"}, st.Parts)
}

func TestStateErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte{0xc1}, 0o600))
	_, err := loadState(garbage)
	assert.ErrorContains(t, err, "invalid state file")

	data, err := msgpack.Marshal(&decodeState{Version: stateVersion + 1})
	require.NoError(t, err)
	future := filepath.Join(dir, "future")
	require.NoError(t, os.WriteFile(future, data, 0o600))
	_, err = loadState(future)
	assert.ErrorContains(t, err, "has version")
}
