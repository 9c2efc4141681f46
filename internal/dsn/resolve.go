// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"

	qerrors "querypilot/cli/internal/errors"
)

// Source says where the effective DSN came from.
type Source string

const (
	SourceFlag     Source = "flag"
	SourceEnv      Source = "env"
	SourceKeychain Source = "keychain"
)

// EnvKeys are consulted in order.
var EnvKeys = []string{"QUERYPILOT_DSN", "DATABASE_URL"}

// Resolved is a normalized DSN plus its provenance.
type Resolved struct {
	DSN    string
	Kind   Kind
	Source Source
}

// Resolve picks the DSN from the flag, then the environment, then the stored
// secret, and normalizes it. stored may be nil.
func Resolve(flag string, getenv func(string) string, stored func() (string, error)) (Resolved, error) {
	raw, src := strings.TrimSpace(flag), SourceFlag
	if raw == "" && getenv != nil {
		for _, k := range EnvKeys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				raw, src = v, SourceEnv
				break
			}
		}
	}
	if raw == "" && stored != nil {
		if v, err := stored(); err == nil && strings.TrimSpace(v) != "" {
			raw, src = strings.TrimSpace(v), SourceKeychain
		}
	}
	if raw == "" {
		return Resolved{}, qerrors.New(qerrors.InvalidConfig, "no database configured: pass --dsn, set DATABASE_URL or run `querypilot connect`")
	}

	info, err := Parse(raw)
	if err != nil {
		return Resolved{}, qerrors.Wrap(qerrors.InvalidConfig, "database DSN from "+string(src), err)
	}
	norm, err := Normalize(info)
	if err != nil {
		return Resolved{}, qerrors.Wrap(qerrors.InvalidConfig, "database DSN from "+string(src), err)
	}
	return Resolved{DSN: norm, Kind: info.Kind, Source: src}, nil
}
