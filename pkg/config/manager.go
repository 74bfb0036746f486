package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Section is one named group of settings.
type Section interface {
	// ID returns the key the section is stored under
	ID() string

	// Title returns a human readable name
	Title() string

	// Description returns a short explanation of the section
	Description() string

	// Data returns the current values keyed by setting name
	Data() map[string]any

	// SetData applies the given values; unknown keys are ignored
	SetData(data map[string]any) error

	// Validate checks the current values
	Validate() error

	// Reset restores defaults
	Reset()
}

// ChangeListener is called after a setting changes. value is the section's
// view of the new value as returned by Data.
type ChangeListener func(sectionID, key string, value any)

// Manager owns the registered sections and their backing store.
type Manager struct {
	store     Store
	sections  map[string]Section
	order     []string
	listeners []ChangeListener
	mu        sync.RWMutex
}

// NewManager creates a manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// RegisterSection adds a section. IDs must be unique.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("section %q already registered", id)
	}
	m.sections[id] = section
	m.order = append(m.order, id)
	return nil
}

// GetSection returns the section registered under id.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	section, ok := m.sections[id]
	return section, ok
}

// GetSections returns all sections in registration order.
func (m *Manager) GetSections() []Section {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sections := make([]Section, 0, len(m.order))
	for _, id := range m.order {
		sections = append(sections, m.sections[id])
	}
	return sections
}

// OnChange registers a listener for Set and Reload changes.
func (m *Manager) OnChange(fn ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// LoadAll loads the store and applies its data to every section.
func (m *Manager) LoadAll() error {
	if err := m.store.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, section := range m.GetSections() {
		data, err := m.store.GetSection(section.ID())
		if err != nil {
			return fmt.Errorf("failed to read section %s: %w", section.ID(), err)
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("failed to apply section %s: %w", section.ID(), err)
		}
	}
	return nil
}

// SaveAll validates every section and writes them to the store.
func (m *Manager) SaveAll() error {
	sections := m.GetSections()
	for _, section := range sections {
		if err := section.Validate(); err != nil {
			return fmt.Errorf("invalid section %s: %w", section.ID(), err)
		}
	}

	for _, section := range sections {
		if err := m.store.SetSection(section.ID(), section.Data()); err != nil {
			return fmt.Errorf("failed to store section %s: %w", section.ID(), err)
		}
	}

	if err := m.store.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ResetAll restores every section to its defaults.
func (m *Manager) ResetAll() {
	for _, section := range m.GetSections() {
		section.Reset()
	}
}

// Set changes one setting, stores it and notifies listeners. The section is
// left untouched when the new value does not validate.
func (m *Manager) Set(sectionID, key string, value any) error {
	section, ok := m.GetSection(sectionID)
	if !ok {
		return fmt.Errorf("unknown section %q", sectionID)
	}

	previous := section.Data()
	if err := section.SetData(map[string]any{key: value}); err != nil {
		return err
	}
	if err := section.Validate(); err != nil {
		_ = section.SetData(previous)
		return fmt.Errorf("invalid %s.%s: %w", sectionID, key, err)
	}

	current := section.Data()
	if err := m.store.SetSection(sectionID, current); err != nil {
		return fmt.Errorf("failed to store section %s: %w", sectionID, err)
	}

	if !reflect.DeepEqual(previous[key], current[key]) {
		m.notify(sectionID, key, current[key])
	}
	return nil
}

// Reload re-reads the store and notifies listeners of every value that
// changed. A section whose new data fails validation keeps its old values.
func (m *Manager) Reload() error {
	if err := m.store.Load(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	type change struct {
		section, key string
		value        any
	}
	var changes []change
	var errs []error

	for _, section := range m.GetSections() {
		data, err := m.store.GetSection(section.ID())
		if err != nil {
			errs = append(errs, err)
			continue
		}

		previous := section.Data()
		err = section.SetData(data)
		if err == nil {
			err = section.Validate()
		}
		if err != nil {
			_ = section.SetData(previous)
			errs = append(errs, fmt.Errorf("section %s: %w", section.ID(), err))
			continue
		}

		for key, value := range section.Data() {
			if !reflect.DeepEqual(previous[key], value) {
				changes = append(changes, change{section.ID(), key, value})
			}
		}
	}

	for _, c := range changes {
		m.notify(c.section, c.key, c.value)
	}

	return errors.Join(errs...)
}

func (m *Manager) notify(sectionID, key string, value any) {
	m.mu.RLock()
	listeners := append([]ChangeListener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(sectionID, key, value)
	}
}
