package deck

import (
	"strings"
	"sync"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/driver"
)

// Kind classifies a dashboard column by its heading.
type Kind struct {
	name  string
	label string
}

var (
	// HomeTimeline is a column headed "Home".
	HomeTimeline = Kind{name: "home_timeline"}

	// Notifications is a column headed "Notifications".
	Notifications = Kind{name: "notifications"}
)

// Other returns the kind of a column with any other heading.
func Other(label string) Kind {
	return Kind{name: "other", label: label}
}

// ParseKind normalises a column heading.
func ParseKind(heading string) Kind {
	switch heading {
	case "Home":
		return HomeTimeline
	case "Notifications":
		return Notifications
	default:
		return Other(heading)
	}
}

// Label returns the raw heading of an Other column, or "" for known kinds.
func (k Kind) Label() string {
	return k.label
}

// ScriptName is the kind passed to the extraction script.
func (k Kind) ScriptName() string {
	if k.name == "other" {
		return k.label
	}
	return k.name
}

func (k Kind) String() string {
	if k.name == "other" {
		return "other(" + k.label + ")"
	}
	return k.name
}

// Column is one feed column on the dashboard and its fetch cursor.
type Column struct {
	// Element is the column's item container. It belongs to the session that
	// discovered it and is rejected by any other.
	Element driver.Element

	Kind    Kind
	Account *accounts.Account

	mu     sync.Mutex
	cursor string
}

// NewColumn creates a column with no cursor.
func NewColumn(el driver.Element, kind Kind, acct *accounts.Account) *Column {
	return &Column{Element: el, Kind: kind, Account: acct}
}

// ScreenName is the linked account's screen name.
func (c *Column) ScreenName() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.ScreenName
}

// Cursor returns the id of the freshest item seen, or "" before the first
// fetch.
func (c *Column) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Advance moves the cursor to id if id is newer. It reports whether the
// cursor moved.
func (c *Column) Advance(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" || !newerID(id, c.cursor) {
		return false
	}
	c.cursor = id
	return true
}

// newerID reports whether id sorts after cursor. Numeric ids compare by
// value; ids that are not both numeric are only compared for equality.
func newerID(id, cursor string) bool {
	if cursor == "" {
		return true
	}
	if id == cursor {
		return false
	}
	if !isDigits(id) || !isDigits(cursor) {
		return true
	}
	id = strings.TrimLeft(id, "0")
	cursor = strings.TrimLeft(cursor, "0")
	if len(id) != len(cursor) {
		return len(id) > len(cursor)
	}
	return id > cursor
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
