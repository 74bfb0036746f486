// Package accounts is the registry of external accounts that dashboard
// columns are linked to.
package accounts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Account is an external account whose items are looked up with its token.
type Account struct {
	ID         string `yaml:"id"`          // Stable account identifier
	ScreenName string `yaml:"screen_name"` // Handle shown in column attributions, without "@"
	Token      string `yaml:"token"`       // Bearer token for the lookup API
}

// Validate checks that the account can be matched and used.
func (a *Account) Validate() error {
	if a.ScreenName == "" {
		return fmt.Errorf("account screen_name cannot be empty")
	}
	if strings.HasPrefix(a.ScreenName, "@") {
		return fmt.Errorf("account %s: screen_name must not start with @", a.ScreenName)
	}
	return nil
}

// Registry looks accounts up by screen name.
type Registry interface {
	// Lookup returns the account whose screen name equals screenName exactly.
	Lookup(screenName string) (*Account, bool)
}

// Static is an in-memory Registry.
type Static struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStatic returns a registry holding accts. Later duplicates replace earlier
// ones.
func NewStatic(accts ...*Account) *Static {
	s := &Static{accounts: make(map[string]*Account, len(accts))}
	for _, a := range accts {
		s.accounts[a.ScreenName] = a
	}
	return s
}

// Lookup implements Registry. Matching is case-sensitive.
func (s *Static) Lookup(screenName string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[screenName]
	return a, ok
}

// Add registers or replaces an account.
func (s *Static) Add(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ScreenName] = a
}

// Len returns the number of accounts.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

type file struct {
	Accounts []*Account `yaml:"accounts"`
}

// LoadFile reads an accounts YAML file:
//
//	accounts:
//	  - id: "12"
//	    screen_name: alice
//	    token: ...
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, a := range f.Accounts {
		if a == nil {
			return nil, fmt.Errorf("account %d: empty entry", i)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("invalid accounts file: %w", err)
		}
	}
	return NewStatic(f.Accounts...), nil
}
