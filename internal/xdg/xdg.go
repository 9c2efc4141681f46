// Package xdg resolves XDG Base Directory paths for querypilot.
// Configuration lives under the config home, the shell history and other
// run-time leftovers under the state home. Both fall back to the traditional
// locations when the XDG variables are unset.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "querypilot"

// ConfigDir returns the XDG config directory for querypilot, creating it with
// private permissions (0700) when missing.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for querypilot, creating it with
// private permissions (0700) when missing.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
