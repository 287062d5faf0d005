// ABOUTME: Persistent agent identity: host identifier plus current token
// ABOUTME: Stored as a private TOML file so restarts reuse the enrollment

package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// State is what an agent remembers between runs.
type State struct {
	HostIdentifier string `toml:"host_identifier"`
	Token          string `toml:"token"`
}

// Valid reports whether both fields are present.
func (s *State) Valid() bool {
	return s != nil && s.HostIdentifier != "" && s.Token != ""
}

// LoadState reads the state file. A missing file returns (nil, nil). A file
// without both fields is removed so the agent enrolls afresh.
func LoadState(path string) (*State, error) {
	var st State
	if _, err := toml.DecodeFile(path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	if !st.Valid() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing incomplete state file: %w", err)
		}
		return nil, nil
	}
	return &st, nil
}

// SaveState writes the state file with owner-only permissions, replacing
// any previous file atomically.
func SaveState(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.toml")
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting state file permissions: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
