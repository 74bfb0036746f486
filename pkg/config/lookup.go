package config

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/entrhq/deckfeed/pkg/statuses"
)

// SectionIDLookup is the identifier for the item lookup section.
const SectionIDLookup = "lookup"

// LookupSection configures the batched item lookup API.
type LookupSection struct {
	BaseURL           string  `json:"base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	mu                sync.RWMutex
}

// NewLookupSection creates a lookup section with default settings.
func NewLookupSection() *LookupSection {
	return &LookupSection{
		BaseURL:           statuses.DefaultBaseURL,
		RequestsPerSecond: statuses.DefaultRequestsPerSecond,
	}
}

func (s *LookupSection) ID() string    { return SectionIDLookup }
func (s *LookupSection) Title() string { return "Item Lookup" }

func (s *LookupSection) Description() string {
	return "Endpoint and request rate for resolving scraped ids into items."
}

// ClientOptions returns options for statuses.NewClient.
func (s *LookupSection) ClientOptions() statuses.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statuses.Options{
		BaseURL:           s.BaseURL,
		RequestsPerSecond: s.RequestsPerSecond,
	}
}

// Data returns the current configuration data.
func (s *LookupSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"base_url":            s.BaseURL,
		"requests_per_second": s.RequestsPerSecond,
	}
}

// SetData updates the configuration from the provided data.
func (s *LookupSection) SetData(data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	baseURL, rps := s.BaseURL, s.RequestsPerSecond
	for key, value := range data {
		var err error
		switch key {
		case "base_url":
			baseURL, err = stringValue(key, value)
		case "requests_per_second":
			rps, err = floatValue(key, value)
		}
		if err != nil {
			return err
		}
	}

	s.BaseURL, s.RequestsPerSecond = baseURL, rps
	return nil
}

// Validate validates the current configuration.
func (s *LookupSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be absolute, got %q", s.BaseURL)
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %v", s.RequestsPerSecond)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *LookupSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BaseURL = statuses.DefaultBaseURL
	s.RequestsPerSecond = statuses.DefaultRequestsPerSecond
}
