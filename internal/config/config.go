// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/xdg"
)

// Timeout policies applied when nobody answers a clarification in time.
const (
	PolicyFail  = "fail"
	PolicyFirst = "first"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string         `json:"log_level"`
	DB       DBConfig       `json:"db"`
	LLM      LLMConfig      `json:"llm"`
	Resolver ResolverConfig `json:"resolver"`
	Query    QueryConfig    `json:"query"`
}

// DBConfig holds database settings. The DSN itself never lands here.
type DBConfig struct {
	Tables           []string `json:"tables"`
	SampleLimit      int      `json:"sample_limit"`
	Workers          int      `json:"workers"`
	StatementTimeout Duration `json:"statement_timeout"`
}

// LLMConfig selects the model used for every text-generation step.
type LLMConfig struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Retries   int    `json:"retries"`
}

// ResolverConfig tunes entity matching and the clarification wait.
type ResolverConfig struct {
	AcceptThreshold    float64  `json:"accept_threshold"`
	Margin             float64  `json:"margin"`
	CandidateThreshold float64  `json:"candidate_threshold"`
	MaxOptions         int      `json:"max_options"`
	ClarifyTimeout     Duration `json:"clarify_timeout"`
	TimeoutPolicy      string   `json:"timeout_policy"`
}

// QueryConfig bounds generated queries.
type QueryConfig struct {
	MaxRows int `json:"max_rows"`
}

// Duration is a time.Duration that reads and writes as "90s" in JSON.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DB: DBConfig{
			Tables:           []string{"tbl_shipment", "tbl_primary", "tbl_product_master"},
			SampleLimit:      50,
			Workers:          4,
			StatementTimeout: Duration(30 * time.Second),
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
			Retries:   3,
		},
		Resolver: ResolverConfig{
			AcceptThreshold:    0.80,
			Margin:             0.10,
			CandidateThreshold: 0.60,
			MaxOptions:         6,
			ClarifyTimeout:     Duration(2 * time.Minute),
			TimeoutPolicy:      PolicyFail,
		},
		Query: QueryConfig{MaxRows: 100},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults. Environment
// overrides (after an optional .env in the working directory) are applied
// last and the result is validated.
func Load() (Config, error) {
	c := Default()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, qerrors.Wrap(qerrors.InvalidConfig, "config file "+p, err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// ApplyEnv overlays QUERYPILOT_* variables on c.
func ApplyEnv(c *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return qerrors.Wrap(qerrors.InvalidConfig, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return qerrors.Wrap(qerrors.InvalidConfig, key, err)
		}
		*dst = Duration(d)
		return nil
	}

	str("QUERYPILOT_LOG_LEVEL", &c.LogLevel)
	str("QUERYPILOT_MODEL", &c.LLM.Model)
	str("QUERYPILOT_TIMEOUT_POLICY", &c.Resolver.TimeoutPolicy)
	if v := strings.TrimSpace(getenv("QUERYPILOT_TABLES")); v != "" {
		c.DB.Tables = SplitList(v)
	}
	for key, dst := range map[string]*int{
		"QUERYPILOT_SAMPLE_LIMIT": &c.DB.SampleLimit,
		"QUERYPILOT_WORKERS":      &c.DB.Workers,
		"QUERYPILOT_MAX_TOKENS":   &c.LLM.MaxTokens,
		"QUERYPILOT_MAX_ROWS":     &c.Query.MaxRows,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if err := dur("QUERYPILOT_CLARIFY_TIMEOUT", &c.Resolver.ClarifyTimeout); err != nil {
		return err
	}
	return dur("QUERYPILOT_STATEMENT_TIMEOUT", &c.DB.StatementTimeout)
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	bad := func(msg string) error { return qerrors.New(qerrors.InvalidConfig, msg) }
	switch {
	case len(c.DB.Tables) == 0:
		return bad("at least one table of interest is required")
	case c.DB.Workers < 1:
		return bad("db.workers must be positive")
	case c.Resolver.CandidateThreshold > c.Resolver.AcceptThreshold:
		return bad("resolver.candidate_threshold must not exceed accept_threshold")
	case c.Resolver.MaxOptions < 2:
		return bad("resolver.max_options must be at least 2")
	case c.Resolver.TimeoutPolicy != PolicyFail && c.Resolver.TimeoutPolicy != PolicyFirst:
		return bad("resolver.timeout_policy must be \"fail\" or \"first\"")
	case c.Query.MaxRows < 0:
		return bad("query.max_rows must not be negative")
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
