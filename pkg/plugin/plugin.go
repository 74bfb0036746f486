// Package plugin ties the dashboard session to the host: configuration,
// start and stop, config-change handling and process-exit teardown.
package plugin

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/async"
	"github.com/entrhq/deckfeed/pkg/config"
	"github.com/entrhq/deckfeed/pkg/deck"
	"github.com/entrhq/deckfeed/pkg/driver"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/scheduler"
	"github.com/entrhq/deckfeed/pkg/types"
)

const notifyTimeout = 5 * time.Second

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Deps are the collaborators a Plugin wires into each session.
type Deps struct {
	Config    *config.Manager
	Launcher  driver.Launcher
	Registry  accounts.Registry
	Lookup    deck.ItemLookup
	Publisher deck.Publisher
	Notifier  Notifier

	// Scheduler drives refresh ticks; nil uses real timers
	Scheduler scheduler.Scheduler
	Logger    *logging.Logger
}

// Plugin owns at most one dashboard session at a time.
type Plugin struct {
	deps   Deps
	logger *logging.Logger

	mu      sync.Mutex
	session *deck.Session
	// stopping holds sessions whose Destroy has not settled yet
	stopping map[*deck.Session]struct{}
}

// New creates a plugin and subscribes it to configuration changes.
func New(deps Deps) *Plugin {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	p := &Plugin{deps: deps, logger: deps.Logger, stopping: make(map[*deck.Session]struct{})}
	deps.Config.OnChange(p.OnConfigChange)
	return p
}

// Boot starts the session if it is enabled in the configuration.
func (p *Plugin) Boot() {
	if config.Deck(p.deps.Config).Enabled() {
		p.Start()
	}
}

// Session returns the current session, or nil.
func (p *Plugin) Session() *deck.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Start tears down any current session and starts a new one from the
// current configuration. Startup failures are reported to the user once and
// leave no session behind.
func (p *Plugin) Start() *async.Value[[]*deck.Column] {
	const op = "plugin.start"

	settings := config.Deck(p.deps.Config).Settings()
	browser := strings.ToLower(settings.Browser)

	p.mu.Lock()
	previous := p.session
	p.session = nil
	if browser == "" {
		p.retireLocked(previous)
		p.mu.Unlock()
		err := types.NewError(types.ErrConfiguration, op, "no browser is configured for the dashboard session")
		p.report(err)
		return async.Rejected[[]*deck.Column](err)
	}

	handle := driver.New(p.deps.Launcher, driver.Config{
		Name:        "deck-driver",
		Browser:     browser,
		Options:     settings.Options,
		URL:         settings.URL,
		SettleDelay: settings.SettleDelay,
	}, p.logger.Named("driver"))

	session := deck.New(handle, deck.Deps{
		Registry:  p.deps.Registry,
		Lookup:    p.deps.Lookup,
		Publisher: p.deps.Publisher,
	}, deck.Options{
		PollInterval: settings.PollInterval,
		Scheduler:    p.deps.Scheduler,
		Logger:       p.logger.Named("deck"),
	})
	p.session = session
	p.retireLocked(previous)
	p.mu.Unlock()

	p.logger.Infof("starting dashboard session with %s", browser)
	started := session.Start()
	go p.watchStart(session, started)
	return started
}

func (p *Plugin) watchStart(session *deck.Session, started *async.Value[[]*deck.Column]) {
	columns, err := started.Await(context.Background())
	if err == nil {
		p.logger.Infof("dashboard session running with %d columns", len(columns))
		return
	}

	p.mu.Lock()
	if p.session == session {
		p.session = nil
	}
	p.mu.Unlock()

	if types.IsStartupError(err) {
		p.report(err)
		return
	}
	p.logger.Errorf("dashboard session did not start: %v", err)
}

// Stop destroys the current session, if any.
func (p *Plugin) Stop() *async.Value[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	session := p.session
	p.session = nil
	if session == nil {
		return async.Resolved(struct{}{})
	}
	p.logger.Infof("stopping dashboard session")
	return p.retireLocked(session)
}

// retireLocked destroys session and keeps it reachable from Shutdown until
// the teardown settles. p.mu must be held.
func (p *Plugin) retireLocked(session *deck.Session) *async.Value[struct{}] {
	if session == nil {
		return async.Resolved(struct{}{})
	}
	destroyed := session.Destroy()
	if destroyed.Settled() {
		return destroyed
	}
	p.stopping[session] = struct{}{}
	go func() {
		<-destroyed.Done()
		p.mu.Lock()
		delete(p.stopping, session)
		p.mu.Unlock()
	}()
	return destroyed
}

// Shutdown is the process-exit hook. It closes the browser without waiting
// on queued work, including sessions still being stopped.
func (p *Plugin) Shutdown() {
	p.mu.Lock()
	sessions := make([]*deck.Session, 0, len(p.stopping)+1)
	if p.session != nil {
		sessions = append(sessions, p.session)
	}
	for s := range p.stopping {
		sessions = append(sessions, s)
	}
	p.session = nil
	clear(p.stopping)
	p.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown()
	}
}

// Stopping reports how many sessions are still tearing down.
func (p *Plugin) Stopping() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stopping)
}

// OnConfigChange restarts or stops the session when "enabled" changes.
// Other keys take effect on the next start.
func (p *Plugin) OnConfigChange(section, key string, value any) {
	if section != config.SectionIDDeck || key != config.KeyEnabled {
		return
	}
	enabled, ok := value.(bool)
	if !ok {
		return
	}
	if enabled {
		p.Start()
	} else {
		p.Stop()
	}
}

// report sends a startup failure to the user and the log.
func (p *Plugin) report(err error) {
	p.logger.Errorf("%v", err)
	if p.deps.Notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if nerr := p.deps.Notifier.Notify(ctx, types.UserMessage(err)); nerr != nil {
		p.logger.Warnf("failed to send notification: %v", nerr)
	}
}
