package driver

import (
	"fmt"
	"time"
)

// Element is an opaque reference to a DOM element. It is only valid on the
// session that produced it; a handle rejects elements from any other session,
// so references do not survive a session restart.
type Element struct {
	session string
	ref     any
}

// NewElement wraps a session-specific element reference.
func NewElement(sessionID string, ref any) Element {
	return Element{session: sessionID, ref: ref}
}

// SessionID returns the id of the session that produced the element.
func (e Element) SessionID() string {
	return e.session
}

// Ref returns the underlying session-specific reference.
func (e Element) Ref() any {
	return e.ref
}

// IsZero reports whether e is the zero Element.
func (e Element) IsZero() bool {
	return e.session == "" && e.ref == nil
}

// Options configures a browser session. It is passed through to the launcher
// unchanged.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool `json:"headless"`

	// Channel selects a branded build, e.g. "chrome" or "msedge"
	Channel string `json:"channel,omitempty"`

	// UserDataDir, when set, launches a persistent profile so an existing
	// dashboard login is reused
	UserDataDir string `json:"user_data_dir,omitempty"`

	// Viewport sets the initial viewport size
	Viewport *Viewport `json:"viewport,omitempty"`

	// Timeout is the default timeout for remote operations
	Timeout time.Duration `json:"timeout,omitempty"`

	// Install downloads the browser binaries before launching
	Install bool `json:"install,omitempty"`

	// Args are extra command line arguments for the browser
	Args []string `json:"args,omitempty"`
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Default values for sessions
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultSettleDelay    = 4 * time.Second
)

// State is the lifecycle state of a Handle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
