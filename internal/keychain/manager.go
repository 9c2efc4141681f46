// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps querypilot's secrets (the database DSN and the
// Anthropic API key) in the OS credential store. Nothing secret is ever
// written to the config file.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	mu            sync.Mutex
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "querypilot"

// Keys used for storing secrets in the OS keychain.
const (
	KeyDBDSN  = "db_dsn"
	KeyAPIKey = "anthropic_api_key"
)

// ErrNotFound is returned when a secret has never been stored.
var ErrNotFound = keyring.ErrKeyNotFound

// Manager provides thread-safe operations on the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// NewManager opens the OS keyring.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithRing(ring), nil
}

// NewWithRing wraps an already opened keyring. Tests pass an in-memory one.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the global keychain manager instance.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only.
// There is deliberately no encrypted-file fallback.
func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on " + runtime.GOOS)
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	return keyring.Open(cfg)
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if err != nil {
		return "", err
	}
	if len(it.Data) == 0 {
		return "", ErrNotFound
	}
	return string(it.Data), nil
}

func (m *Manager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ring.Remove(key)
}

// SaveDBDSN stores the database DSN in the keychain.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN retrieves the database DSN from the keychain.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// SaveAPIKey stores the Anthropic API key.
func (m *Manager) SaveAPIKey(key string) error { return m.set(KeyAPIKey, key) }

// LoadAPIKey retrieves the Anthropic API key.
func (m *Manager) LoadAPIKey() (string, error) { return m.get(KeyAPIKey) }

// ClearAll removes every querypilot secret. Missing entries are not an error.
func (m *Manager) ClearAll() {
	m.remove(KeyDBDSN)
	m.remove(KeyAPIKey)
}
