package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// New creates a manager backed by the file at configPath with the deck and
// lookup sections registered and loaded.
func New(configPath string) (*Manager, error) {
	store, err := NewFileStore(configPath)
	if err != nil {
		return nil, err
	}

	manager := NewManager(store)
	if err := manager.RegisterSection(NewDeckSection()); err != nil {
		return nil, err
	}
	if err := manager.RegisterSection(NewLookupSection()); err != nil {
		return nil, err
	}

	if err := manager.LoadAll(); err != nil {
		return nil, err
	}
	return manager, nil
}

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup.
func Initialize(configPath string) error {
	manager, err := New(configPath)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// Deck returns the deck section of m.
func Deck(m *Manager) *DeckSection {
	section, ok := m.GetSection(SectionIDDeck)
	if !ok {
		return nil
	}
	deck, _ := section.(*DeckSection)
	return deck
}

// Lookup returns the lookup section of m.
func Lookup(m *Manager) *LookupSection {
	section, ok := m.GetSection(SectionIDLookup)
	if !ok {
		return nil
	}
	lookup, _ := section.(*LookupSection)
	return lookup
}
