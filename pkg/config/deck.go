package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/deckfeed/pkg/deck"
	"github.com/entrhq/deckfeed/pkg/driver"
)

const (
	// SectionIDDeck is the identifier for the dashboard session section
	SectionIDDeck = "deck"

	// KeyEnabled toggles the dashboard session on and off
	KeyEnabled = "enabled"

	// DefaultDashboardURL is the page loaded after launch
	DefaultDashboardURL = "https://tweetdeck.twitter.com"
)

// DeckSettings is a snapshot of the deck section.
type DeckSettings struct {
	Enabled      bool
	Browser      string
	URL          string
	PollInterval time.Duration
	SettleDelay  time.Duration
	Options      driver.Options
}

// DeckSection configures the browser session that scrapes the dashboard.
// The browser must be set before the session can start; it is left empty
// by default so a fresh install never launches anything on its own.
type DeckSection struct {
	settings DeckSettings
	mu       sync.RWMutex
}

// NewDeckSection creates a deck section with default settings.
func NewDeckSection() *DeckSection {
	return &DeckSection{settings: defaultDeckSettings()}
}

func defaultDeckSettings() DeckSettings {
	return DeckSettings{
		URL:          DefaultDashboardURL,
		PollInterval: deck.DefaultPollInterval,
		SettleDelay:  driver.DefaultSettleDelay,
		Options: driver.Options{
			Headless: true,
			Viewport: &driver.Viewport{
				Width:  driver.DefaultViewportWidth,
				Height: driver.DefaultViewportHeight,
			},
			Timeout: driver.DefaultTimeout,
		},
	}
}

func (s *DeckSection) ID() string    { return SectionIDDeck }
func (s *DeckSection) Title() string { return "Dashboard Session" }

func (s *DeckSection) Description() string {
	return "Browser used to read dashboard columns and how often they are polled."
}

// Settings returns a copy of the current settings.
func (s *DeckSection) Settings() DeckSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.settings
	if s.settings.Options.Viewport != nil {
		vp := *s.settings.Options.Viewport
		out.Options.Viewport = &vp
	}
	out.Options.Args = append([]string(nil), s.settings.Options.Args...)
	return out
}

// Enabled reports whether the session should be running.
func (s *DeckSection) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Enabled
}

// Data returns the current configuration data.
func (s *DeckSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.settings
	data := map[string]any{
		KeyEnabled:      st.Enabled,
		"browser":       st.Browser,
		"url":           st.URL,
		"poll_interval": st.PollInterval.String(),
		"settle_delay":  st.SettleDelay.String(),
		"headless":      st.Options.Headless,
		"channel":       st.Options.Channel,
		"user_data_dir": st.Options.UserDataDir,
		"timeout":       st.Options.Timeout.String(),
		"install":       st.Options.Install,
		"args":          append([]string{}, st.Options.Args...),
	}
	if st.Options.Viewport != nil {
		data["viewport_width"] = st.Options.Viewport.Width
		data["viewport_height"] = st.Options.Viewport.Height
	}
	return data
}

// SetData updates the configuration from the provided data.
func (s *DeckSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if next.Options.Viewport != nil {
		vp := *next.Options.Viewport
		next.Options.Viewport = &vp
	}

	var err error
	for key, value := range data {
		switch key {
		case KeyEnabled:
			next.Enabled, err = boolValue(key, value)
		case "browser":
			next.Browser, err = stringValue(key, value)
		case "url":
			next.URL, err = stringValue(key, value)
		case "poll_interval":
			next.PollInterval, err = durationValue(key, value)
		case "settle_delay":
			next.SettleDelay, err = durationValue(key, value)
		case "headless":
			next.Options.Headless, err = boolValue(key, value)
		case "channel":
			next.Options.Channel, err = stringValue(key, value)
		case "user_data_dir":
			next.Options.UserDataDir, err = stringValue(key, value)
		case "timeout":
			next.Options.Timeout, err = durationValue(key, value)
		case "install":
			next.Options.Install, err = boolValue(key, value)
		case "args":
			next.Options.Args, err = stringsValue(key, value)
		case "viewport_width", "viewport_height":
			var n int
			if n, err = intValue(key, value); err == nil {
				if next.Options.Viewport == nil {
					next.Options.Viewport = &driver.Viewport{}
				}
				if key == "viewport_width" {
					next.Options.Viewport.Width = n
				} else {
					next.Options.Viewport.Height = n
				}
			}
		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
		if err != nil {
			return err
		}
	}

	s.settings = next
	return nil
}

// Validate validates the current configuration. An empty browser is allowed
// here; starting the session reports it.
func (s *DeckSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.settings
	var errs []error
	if u, err := url.Parse(st.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("url must be absolute, got %q", st.URL))
	}
	if st.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll_interval must be at least 1s, got %v", st.PollInterval))
	}
	if st.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle_delay must not be negative, got %v", st.SettleDelay))
	}
	if st.Options.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", st.Options.Timeout))
	}
	if vp := st.Options.Viewport; vp != nil && (vp.Width <= 0 || vp.Height <= 0) {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %dx%d", vp.Width, vp.Height))
	}
	if strings.TrimSpace(st.Browser) != st.Browser {
		errs = append(errs, fmt.Errorf("browser must not have surrounding spaces"))
	}
	return errors.Join(errs...)
}

// Reset resets the section to default configuration.
func (s *DeckSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = defaultDeckSettings()
}

func boolValue(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
	}
	return b, nil
}

func stringValue(key string, value any) (string, error) {
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
	}
	return str, nil
}

// stringsValue accepts a []string or a JSON array of strings.
func stringsValue(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid value type for %s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, str)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid value type for %s: expected list of strings, got %T", key, value)
	}
}

func intValue(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		// JSON numbers come as float64
		return int(v), nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected number, got %T", key, value)
	}
}

func floatValue(key string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected number, got %T", key, value)
	}
}

// durationValue accepts "4s" style strings or nanosecond counts.
func durationValue(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case float64:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected string or number, got %T", key, value)
	}
}
