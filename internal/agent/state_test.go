// ABOUTME: Tests for agent state persistence
// ABOUTME: Covers round trips, missing files, incomplete files, and permissions

package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.toml")

	want := &State{HostIdentifier: "abc", Token: "tok"}
	require.NoError(t, SaveState(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadState_Missing(t *testing.T) {
	st, err := LoadState(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestLoadState_IncompleteIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte(`host_identifier = "abc"`+"\n"), 0o600))

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadState_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is = = not toml"), 0o600))

	_, err := LoadState(path)
	assert.Error(t, err)
}

func TestState_Valid(t *testing.T) {
	var nilState *State
	assert.False(t, nilState.Valid())
	assert.False(t, (&State{HostIdentifier: "abc"}).Valid())
	assert.False(t, (&State{Token: "tok"}).Valid())
	assert.True(t, (&State{HostIdentifier: "abc", Token: "tok"}).Valid())
}
