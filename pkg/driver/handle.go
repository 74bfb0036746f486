package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/deckfeed/pkg/async"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/types"
)

// Config describes the session a Handle brings up.
type Config struct {
	// Name labels the handle's queue in logs and metrics
	Name string

	// Browser is the case-insensitive browser name given to the launcher
	Browser string

	// Options are passed to the launcher unchanged
	Options Options

	// URL is loaded right after launch
	URL string

	// SettleDelay is waited after navigation before the handle is ready
	SettleDelay time.Duration
}

// Handle owns one remote browser session. Every operation is queued on a
// single worker behind session bring-up and returns an async.Value.
type Handle struct {
	cfg      Config
	launcher Launcher
	logger   *logging.Logger
	queue    *async.Queue
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	state     State
	session   Session
	initErr   error
	destroyed *async.Value[struct{}]
}

// New creates a handle and immediately queues session bring-up: launch,
// navigate to cfg.URL, then wait cfg.SettleDelay. It does not block.
func New(launcher Launcher, cfg Config, logger *logging.Logger) *Handle {
	if cfg.Name == "" {
		cfg.Name = "driver"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger,
		queue:    async.NewQueue(cfg.Name),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateUninitialized,
	}

	h.setState(StateInitializing)
	async.Submit(h.queue, func(context.Context) (struct{}, error) {
		return struct{}{}, h.initialize()
	})
	return h
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// setState must not be called with h.mu held.
func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	h.logger.Debugf("%s: state %s", h.cfg.Name, s)
}

func (h *Handle) initialize() error {
	const op = "driver.init"

	h.logger.Infof("launching %s and loading %s", h.cfg.Browser, h.cfg.URL)
	sess, err := h.launcher.Launch(h.ctx, h.cfg.Browser, h.cfg.Options)
	if err != nil {
		return h.failInit(types.WrapError(types.ErrInitialization, op, fmt.Errorf("launch %s: %w", h.cfg.Browser, err)))
	}

	h.mu.Lock()
	if h.state == StateDestroyed {
		// Shut down while launching: nobody else will ever see this session.
		h.mu.Unlock()
		h.closeDetached(sess)
		return types.StateErrorf(op, "handle destroyed during initialization")
	}
	h.session = sess
	h.mu.Unlock()
	sessionsOpened.Inc()

	if err := sess.Navigate(h.ctx, h.cfg.URL); err != nil {
		return h.failInit(types.WrapError(types.ErrInitialization, op, fmt.Errorf("navigate %s: %w", h.cfg.URL, err)))
	}

	if h.cfg.SettleDelay > 0 {
		timer := time.NewTimer(h.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-h.ctx.Done():
			return h.failInit(types.WrapError(types.ErrInitialization, op, h.ctx.Err()))
		}
	}

	h.mu.Lock()
	if h.state == StateDestroyed {
		h.mu.Unlock()
		return types.StateErrorf(op, "handle destroyed during initialization")
	}
	h.state = StateReady
	h.mu.Unlock()
	h.logger.Infof("%s: session %s ready", h.cfg.Name, sess.ID())
	return nil
}

// failInit records err, moves to Failed and closes any partially opened
// session.
func (h *Handle) failInit(err error) error {
	initFailures.Inc()
	h.logger.Errorf("%s: %v", h.cfg.Name, err)

	h.mu.Lock()
	h.initErr = err
	if h.state != StateDestroyed {
		h.state = StateFailed
	}
	h.mu.Unlock()

	h.closeSession()
	return err
}

// closeSession takes the session out of the handle and closes it. The session
// is detached under the lock, so it is closed at most once across the queued
// teardown and the emergency path.
func (h *Handle) closeSession() {
	h.mu.Lock()
	sess := h.session
	h.session = nil
	h.mu.Unlock()
	h.closeDetached(sess)
}

func (h *Handle) closeDetached(sess Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		h.logger.Warnf("%s: closing session %s: %v", h.cfg.Name, sess.ID(), err)
	}
	sessionsClosed.Inc()
}

// live returns the session if the handle is usable.
func (h *Handle) live(op string) (Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateReady:
		return h.session, nil
	case StateFailed:
		return nil, h.initErr
	case StateDestroyed:
		return nil, types.StateErrorf(op, "driver handle destroyed")
	default:
		return nil, types.StateErrorf(op, "driver handle is %s", h.state)
	}
}

func (h *Handle) rejectIfDestroyed(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateDestroyed || h.destroyed != nil {
		return types.StateErrorf(op, "driver handle destroyed")
	}
	return nil
}

func checkElement(op string, sess Session, els ...Element) error {
	for _, el := range els {
		if el.SessionID() != sess.ID() {
			return types.StateErrorf(op, "element belongs to session %q, not %q", el.SessionID(), sess.ID())
		}
	}
	return nil
}

// submit queues fn behind everything already submitted. Session failures are
// reported as protocol errors; state problems as state errors.
func submit[T any](h *Handle, op string, fn func(ctx context.Context, sess Session) (T, error)) *async.Value[T] {
	if err := h.rejectIfDestroyed(op); err != nil {
		operations.WithLabelValues(op, "rejected").Inc()
		return async.Rejected[T](err)
	}
	v := async.Submit(h.queue, func(context.Context) (T, error) {
		defer queueDepth.WithLabelValues(h.queue.Name()).Set(float64(h.queue.Len()))
		var zero T
		sess, err := h.live(op)
		if err != nil {
			operations.WithLabelValues(op, "rejected").Inc()
			return zero, err
		}
		out, err := fn(h.ctx, sess)
		recordOp(op, err)
		if err != nil {
			return zero, types.WrapError(types.ErrProtocol, op, err)
		}
		return out, nil
	})
	queueDepth.WithLabelValues(h.queue.Name()).Set(float64(h.queue.Len()))
	return v
}

// Ready resolves once bring-up has finished, or rejects with its failure.
func (h *Handle) Ready() *async.Value[struct{}] {
	if err := h.rejectIfDestroyed("driver.ready"); err != nil {
		return async.Rejected[struct{}](err)
	}
	return async.Submit(h.queue, func(context.Context) (struct{}, error) {
		_, err := h.live("driver.ready")
		return struct{}{}, err
	})
}

// Navigate loads url.
func (h *Handle) Navigate(url string) *async.Value[struct{}] {
	return submit(h, "driver.navigate", func(ctx context.Context, s Session) (struct{}, error) {
		return struct{}{}, s.Navigate(ctx, url)
	})
}

// FindElement finds the first element matching selector.
func (h *Handle) FindElement(selector string) *async.Value[Element] {
	return submit(h, "driver.find_element", func(ctx context.Context, s Session) (Element, error) {
		return s.FindElement(ctx, selector)
	})
}

// FindElements finds all elements matching selector.
func (h *Handle) FindElements(selector string) *async.Value[[]Element] {
	return submit(h, "driver.find_elements", func(ctx context.Context, s Session) ([]Element, error) {
		return s.FindElements(ctx, selector)
	})
}

// FindChild finds the first descendant of parent matching selector.
func (h *Handle) FindChild(parent Element, selector string) *async.Value[Element] {
	const op = "driver.find_child"
	return submit(h, op, func(ctx context.Context, s Session) (Element, error) {
		if err := checkElement(op, s, parent); err != nil {
			return Element{}, err
		}
		return s.FindChild(ctx, parent, selector)
	})
}

// Attribute reads an attribute of el.
func (h *Handle) Attribute(el Element, name string) *async.Value[string] {
	const op = "driver.attribute"
	return submit(h, op, func(ctx context.Context, s Session) (string, error) {
		if err := checkElement(op, s, el); err != nil {
			return "", err
		}
		return s.Attribute(ctx, el, name)
	})
}

// Text reads the text content of el.
func (h *Handle) Text(el Element) *async.Value[string] {
	const op = "driver.text"
	return submit(h, op, func(ctx context.Context, s Session) (string, error) {
		if err := checkElement(op, s, el); err != nil {
			return "", err
		}
		return s.Text(ctx, el)
	})
}

// ExecuteScript evaluates source in the page with args.
func (h *Handle) ExecuteScript(source string, args ...any) *async.Value[any] {
	const op = "driver.execute_script"
	return submit(h, op, func(ctx context.Context, s Session) (any, error) {
		for _, a := range args {
			if el, ok := a.(Element); ok {
				if err := checkElement(op, s, el); err != nil {
					return nil, err
				}
			}
		}
		return s.ExecuteScript(ctx, source, args...)
	})
}

// Destroy queues teardown behind any in-flight bring-up and closes the session
// once. Later calls return the same value. Commands queued before Destroy still
// run; commands submitted after it are rejected with a state error. The
// returned value never rejects.
func (h *Handle) Destroy() *async.Value[struct{}] {
	h.mu.Lock()
	if h.destroyed != nil {
		v := h.destroyed
		h.mu.Unlock()
		return v
	}
	if h.state == StateDestroyed {
		h.destroyed = async.Resolved(struct{}{})
		v := h.destroyed
		h.mu.Unlock()
		return v
	}
	h.destroyed = async.Submit(h.queue, func(context.Context) (struct{}, error) {
		h.teardown()
		return struct{}{}, nil
	})
	v := h.destroyed
	h.mu.Unlock()

	h.queue.Close()
	return v
}

func (h *Handle) teardown() {
	h.mu.Lock()
	already := h.state == StateDestroyed
	h.state = StateDestroyed
	h.mu.Unlock()
	if already {
		return
	}
	h.logger.Infof("%s: tearing down", h.cfg.Name)
	h.closeSession()
	h.cancel()
}

// Shutdown is the synchronous teardown used at process exit. It closes the
// session directly without waiting on the queue and aborts an in-flight
// bring-up, which then closes its own session. No-op once destroyed.
func (h *Handle) Shutdown() {
	h.mu.Lock()
	if h.state == StateDestroyed {
		h.mu.Unlock()
		return
	}
	h.state = StateDestroyed
	h.mu.Unlock()

	h.logger.Warnf("%s: emergency shutdown", h.cfg.Name)
	h.cancel()
	h.closeSession()
	h.queue.Close()
}
