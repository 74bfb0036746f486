package driver

import (
	"context"
	"errors"
)

// ErrNoSuchElement is returned when a selector matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// Session is one live remote browser connection. Implementations need not be
// safe for concurrent use; a Handle only calls them from its own worker.
type Session interface {
	// ID uniquely identifies the session. Elements carry it.
	ID() string

	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error

	// FindElement returns the first element matching a CSS selector, or
	// ErrNoSuchElement.
	FindElement(ctx context.Context, selector string) (Element, error)

	// FindElements returns every element matching a CSS selector in DOM order.
	FindElements(ctx context.Context, selector string) ([]Element, error)

	// FindChild returns the first descendant of parent matching selector, or
	// ErrNoSuchElement.
	FindChild(ctx context.Context, parent Element, selector string) (Element, error)

	// Attribute returns the value of an element attribute ("" when absent).
	Attribute(ctx context.Context, el Element, name string) (string, error)

	// Text returns the element's text content.
	Text(ctx context.Context, el Element) (string, error)

	// ExecuteScript evaluates a JavaScript function in the page. The function
	// receives args as a single array; Elements are passed as live DOM nodes.
	ExecuteScript(ctx context.Context, source string, args ...any) (any, error)

	// Close ends the session and releases its resources.
	Close() error
}

// Launcher opens sessions.
type Launcher interface {
	// Launch starts a browser by case-insensitive name with opts.
	Launch(ctx context.Context, browser string, opts Options) (Session, error)
}
