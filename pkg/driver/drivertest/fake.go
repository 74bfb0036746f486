// Package drivertest provides an in-memory driver.Session and driver.Launcher
// for tests. The fake session models a tiny DOM: page-level selectors map to
// element refs, and refs carry children, attributes and text.
package drivertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/deckfeed/pkg/driver"
)

// Session is a scripted driver.Session.
type Session struct {
	mu        sync.Mutex
	id        string
	nodes     map[string][]string
	children  map[[2]string]string
	attrs     map[[2]string]string
	texts     map[string]string
	script    func(source string, args []any) (any, error)
	navErr    error
	navigated []string
	calls     []string
	closes    int
}

// NewSession returns an empty fake session with the given id.
func NewSession(id string) *Session {
	return &Session{
		id:       id,
		nodes:    make(map[string][]string),
		children: make(map[[2]string]string),
		attrs:    make(map[[2]string]string),
		texts:    make(map[string]string),
	}
}

// AddElements makes selector match refs, in order.
func (s *Session) AddElements(selector string, refs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[selector] = append(s.nodes[selector], refs...)
}

// AddChild makes selector, scoped to parent, match child.
func (s *Session) AddChild(parent, selector, child string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[[2]string{parent, selector}] = child
}

// SetAttribute sets an attribute on ref.
func (s *Session) SetAttribute(ref, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[[2]string{ref, name}] = value
}

// SetText sets the text content of ref.
func (s *Session) SetText(ref, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[ref] = text
}

// OnScript installs the ExecuteScript implementation. Element arguments are
// passed as their string refs.
func (s *Session) OnScript(fn func(source string, args []any) (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = fn
}

// FailNavigate makes every Navigate return err.
func (s *Session) FailNavigate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navErr = err
}

// Element returns an element of this session for ref.
func (s *Session) Element(ref string) driver.Element {
	return driver.NewElement(s.id, ref)
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Navigated returns the URLs passed to Navigate.
func (s *Session) Navigated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

// Calls returns the operations invoked so far, e.g. "find #container".
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Session) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Session) ref(el driver.Element) (string, error) {
	ref, ok := el.Ref().(string)
	if !ok {
		return "", fmt.Errorf("foreign element ref %T", el.Ref())
	}
	return ref, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("navigate %s", url)
	s.navigated = append(s.navigated, url)
	return s.navErr
}

func (s *Session) FindElement(ctx context.Context, selector string) (driver.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("find %s", selector)
	refs := s.nodes[selector]
	if len(refs) == 0 {
		return driver.Element{}, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, selector)
	}
	return driver.NewElement(s.id, refs[0]), nil
}

func (s *Session) FindElements(ctx context.Context, selector string) ([]driver.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("find_all %s", selector)
	refs := s.nodes[selector]
	out := make([]driver.Element, 0, len(refs))
	for _, r := range refs {
		out = append(out, driver.NewElement(s.id, r))
	}
	return out, nil
}

func (s *Session) FindChild(ctx context.Context, parent driver.Element, selector string) (driver.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ref(parent)
	if err != nil {
		return driver.Element{}, err
	}
	s.record("child %s %s", p, selector)
	child, ok := s.children[[2]string{p, selector}]
	if !ok {
		return driver.Element{}, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, selector)
	}
	return driver.NewElement(s.id, child), nil
}

func (s *Session) Attribute(ctx context.Context, el driver.Element, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.ref(el)
	if err != nil {
		return "", err
	}
	s.record("attr %s %s", r, name)
	return s.attrs[[2]string{r, name}], nil
}

func (s *Session) Text(ctx context.Context, el driver.Element) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.ref(el)
	if err != nil {
		return "", err
	}
	s.record("text %s", r)
	return s.texts[r], nil
}

func (s *Session) ExecuteScript(ctx context.Context, source string, args ...any) (any, error) {
	s.mu.Lock()
	script := s.script
	converted := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(driver.Element); ok {
			r, err := s.ref(el)
			if err != nil {
				s.mu.Unlock()
				return nil, err
			}
			converted[i] = r
			continue
		}
		converted[i] = a
	}
	s.record("script %v", converted)
	s.mu.Unlock()

	if script == nil {
		return nil, nil
	}
	return script(source, converted)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("close")
	s.closes++
	return nil
}

// Launcher hands out a prepared Session.
type Launcher struct {
	mu       sync.Mutex
	session  *Session
	err      error
	gate     chan struct{}
	launches int
	browsers []string
}

// NewLauncher returns a launcher that yields sess.
func NewLauncher(sess *Session) *Launcher {
	return &Launcher{session: sess}
}

// FailWith makes Launch return err.
func (l *Launcher) FailWith(err error) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
	return l
}

// Hold makes Launch block until Release is called, regardless of ctx.
func (l *Launcher) Hold() *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = make(chan struct{})
	return l
}

// Release unblocks a held Launch.
func (l *Launcher) Release() {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Browsers returns the browser names Launch was called with.
func (l *Launcher) Browsers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.browsers...)
}

func (l *Launcher) Launch(ctx context.Context, browser string, opts driver.Options) (driver.Session, error) {
	l.mu.Lock()
	l.launches++
	l.browsers = append(l.browsers, browser)
	gate, sess, err := l.gate, l.session, l.err
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}
