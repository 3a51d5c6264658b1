package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"stockview/internal/store"
)

// Manager layers runtime overrides from the store's app_config table over
// a base configuration and hands out immutable snapshots. Updates are
// decoded onto a typed copy of the current configuration, so unknown keys
// and type mismatches are rejected instead of silently passed through.
type Manager struct {
	st store.Store

	mu      sync.RWMutex
	base    Config
	current Config

	// onProviderChange fires after an update changes data.provider; the
	// composition wires this to the cache purge.
	onProviderChange func()
}

// NewManager builds a Manager from base (defaults + file + env) and loads
// any persisted overrides.
func NewManager(ctx context.Context, base Config, st store.Store) (*Manager, error) {
	m := &Manager{st: st, base: base, current: base}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// OnProviderChange registers the provider-switch hook. Must be called
// during composition, before updates can arrive.
func (m *Manager) OnProviderChange(fn func()) { m.onProviderChange = fn }

// Snapshot returns the current configuration by value. Config contains no
// reference types, so the copy is immutable to the caller.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Refresh reloads persisted overrides over the base configuration.
// Sections that fail to decode are skipped, matching the tolerance for
// half-written rows.
func (m *Manager) Refresh(ctx context.Context) error {
	stored, err := m.st.ConfigValues(ctx)
	if err != nil {
		return fmt.Errorf("load config overrides: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := m.base
	for key, raw := range stored {
		section := sectionPointer(&merged, key)
		if section == nil {
			continue
		}
		if err := json.Unmarshal([]byte(raw), section); err != nil {
			continue
		}
	}
	m.current = merged
	return nil
}

// Update merges a JSON override document into the current configuration,
// persists every section, and fires the provider-switch hook when
// data.provider changed. The merged snapshot is returned.
func (m *Manager) Update(ctx context.Context, payload []byte) (Config, error) {
	m.mu.Lock()
	merged := m.current
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&merged); err != nil {
		m.mu.Unlock()
		return Config{}, fmt.Errorf("invalid settings payload: %w", err)
	}
	previousProvider := m.current.Data.Provider

	for key, section := range sections(&merged) {
		raw, err := json.Marshal(section)
		if err != nil {
			m.mu.Unlock()
			return Config{}, fmt.Errorf("encode %s section: %w", key, err)
		}
		if err := m.st.PutConfigValue(ctx, key, string(raw)); err != nil {
			m.mu.Unlock()
			return Config{}, err
		}
	}
	m.current = merged
	m.mu.Unlock()

	if previousProvider != merged.Data.Provider && m.onProviderChange != nil {
		m.onProviderChange()
	}
	return merged, nil
}

func sections(c *Config) map[string]any {
	return map[string]any{
		"server":       &c.Server,
		"storage":      &c.Storage,
		"logging":      &c.Logging,
		"data":         &c.Data,
		"alphavantage": &c.AlphaVantage,
		"finnhub":      &c.Finnhub,
		"cache":        &c.Cache,
		"ai":           &c.AI,
		"ui":           &c.UI,
	}
}

func sectionPointer(c *Config, key string) any {
	section, ok := sections(c)[key]
	if !ok {
		return nil
	}
	return section
}
