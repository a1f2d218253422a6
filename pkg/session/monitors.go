package session

import "github.com/lattice-vm/vdbridged/pkg/wire"

// MonitorsStore holds the last-known host-requested monitor layout
// (spec.md §4.2), single-owner (the daemon), replaced on each
// MONITORS_CONFIG and re-forwarded on every active-agent change.
type MonitorsStore struct {
	current *wire.MonitorsConfig
}

// NewMonitorsStore returns a store with no configuration yet.
func NewMonitorsStore() *MonitorsStore {
	return &MonitorsStore{}
}

func (m *MonitorsStore) Set(cfg wire.MonitorsConfig) {
	m.current = &cfg
}

// Get returns the last configuration and whether one has ever been set.
func (m *MonitorsStore) Get() (wire.MonitorsConfig, bool) {
	if m.current == nil {
		return wire.MonitorsConfig{}, false
	}
	return *m.current, true
}
