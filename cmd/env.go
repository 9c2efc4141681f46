// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"strings"

	"querypilot/cli/internal/clarify"
	"querypilot/cli/internal/database"
	"querypilot/cli/internal/dsn"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/keychain"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/pipeline"
)

// Connection flags shared by every command that touches the database.
var (
	dsnFlag    string
	sqliteFlag string
	tablesFlag []string
)

// resolveDSN picks the effective DSN: --sqlite, --dsn, environment, then the
// keychain.
func resolveDSN() (dsn.Resolved, error) {
	flag := dsnFlag
	if sqliteFlag != "" {
		flag = "sqlite:" + sqliteFlag
	}
	return dsn.Resolve(flag, os.Getenv, storedDSN)
}

func storedDSN() (string, error) {
	km, err := keychain.GetManager()
	if err != nil {
		return "", err
	}
	return km.LoadDBDSN()
}

func dbOptions() database.Options {
	return database.Options{
		StatementTimeout: cfg.DB.StatementTimeout.Std(),
		MaxConns:         int32(cfg.DB.Workers) + 1,
	}
}

// opener connects to r afresh for every run.
func opener(r dsn.Resolved) pipeline.Opener {
	return func(ctx context.Context) (database.Conn, error) {
		return database.Open(ctx, r, dbOptions())
	}
}

// tables returns the tables of interest, --tables winning over config.
func tables() []string {
	if len(tablesFlag) > 0 {
		return tablesFlag
	}
	return cfg.DB.Tables
}

// newModel builds the retrying Anthropic client. The key comes from
// ANTHROPIC_API_KEY or the keychain.
func newModel() (llm.Completer, error) {
	key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		if km, err := keychain.GetManager(); err == nil {
			key, _ = km.LoadAPIKey()
		}
	}
	if key == "" {
		return nil, qerrors.New(qerrors.InvalidConfig, "no Anthropic API key: set ANTHROPIC_API_KEY or run `querypilot connect --api-key`")
	}
	return &llm.Retrying{
		Next:   llm.NewAnthropic(key, cfg.LLM.Model, cfg.LLM.MaxTokens, logger),
		Tries:  uint(max(cfg.LLM.Retries, 1)),
		Logger: logger,
	}, nil
}

// newAssistant wires the configured database and model into an Assistant.
func newAssistant() (pipeline.Assistant, dsn.Resolved, error) {
	r, err := resolveDSN()
	if err != nil {
		return pipeline.Assistant{}, r, err
	}
	model, err := newModel()
	if err != nil {
		return pipeline.Assistant{}, r, err
	}
	a := pipeline.FromConfig(&cfg, opener(r), model, logger)
	a.Tables = tables()
	return a, r, nil
}

func sessionOptions() []clarify.Option {
	return []clarify.Option{clarify.WithTimeout(cfg.Resolver.ClarifyTimeout.Std())}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dsnFlag, "dsn", "", "Database connection string (postgres://... or sqlite:path)")
	pf.StringVar(&sqliteFlag, "sqlite", "", "Path to a SQLite database file")
	pf.StringSliceVar(&tablesFlag, "tables", nil, "Tables the assistant may query (comma-separated)")
}
