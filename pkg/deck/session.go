// Package deck scrapes feed columns from a web dashboard and publishes new
// items.
//
// A Session walks a linear state machine: Initialized, Starting, Running,
// Destroyed. Start confirms the dashboard is logged in, discovers the Home
// columns linked to known accounts and enters a polling loop. Each tick
// extracts new item ids per column, hydrates them with one batched lookup and
// publishes them, then schedules the next tick after the poll interval.
package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/async"
	"github.com/entrhq/deckfeed/pkg/driver"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/scheduler"
	"github.com/entrhq/deckfeed/pkg/types"
)

// DefaultPollInterval is the delay between refresh ticks.
const DefaultPollInterval = 4 * time.Second

var tracer = otel.Tracer("github.com/entrhq/deckfeed/pkg/deck")

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusInitialized Status = iota
	StatusStarting
	StatusRunning
	StatusDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Deps are the collaborators a Session needs.
type Deps struct {
	Registry  accounts.Registry
	Lookup    ItemLookup
	Publisher Publisher
}

// Options tune a Session. Zero values take defaults.
type Options struct {
	PollInterval time.Duration
	Scheduler    scheduler.Scheduler
	Logger       *logging.Logger
}

// FetchResult summarises one pass over the columns.
type FetchResult struct {
	Columns int
	Items   int

	// Failed holds one error per column skipped this pass.
	Failed []error
}

// Session drives one dashboard. Startup and fetch passes run one at a time
// on the session's own queue.
type Session struct {
	driver       Driver
	registry     accounts.Registry
	lookup       ItemLookup
	publisher    Publisher
	sched        scheduler.Scheduler
	pollInterval time.Duration
	logger       *logging.Logger

	loop   *async.Queue
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  Status
	columns []*Column
	timer   scheduler.Timer
}

// New creates a session over d. The session owns d and destroys it.
func New(d Driver, deps Deps, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		driver:       d,
		registry:     deps.Registry,
		lookup:       deps.Lookup,
		publisher:    deps.Publisher,
		sched:        opts.Scheduler,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		loop:         async.NewQueue("deck"),
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusInitialized,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Columns returns the columns being polled.
func (s *Session) Columns() []*Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Column(nil), s.columns...)
}

// taskContext derives a task context that is also cancelled when the session
// is torn down. It keeps the queue identity of qctx.
func (s *Session) taskContext(qctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(qctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Start brings the dashboard to Running and begins polling. It is only valid
// once; a second call is rejected with a state error without side effects.
// Any startup failure destroys the session.
func (s *Session) Start() *async.Value[[]*Column] {
	const op = "deck.start"

	s.mu.Lock()
	if s.status != StatusInitialized {
		st := s.status
		s.mu.Unlock()
		return async.Rejected[[]*Column](types.StateErrorf(op, "cannot start a dashboard session that is %s", st))
	}
	s.status = StatusStarting
	s.mu.Unlock()

	return async.Submit(s.loop, func(qctx context.Context) ([]*Column, error) {
		ctx, done := s.taskContext(qctx)
		defer done()

		columns, err := s.start(ctx)
		if err != nil {
			if ctx.Err() != nil && s.Status() == StatusDestroyed {
				err = types.StateErrorf(op, "dashboard session destroyed while starting")
			}
			startFailures.WithLabelValues(failureReason(err)).Inc()
			s.logger.Errorf("start failed: %v", err)
			s.Destroy()
			return nil, err
		}
		return columns, nil
	})
}

func (s *Session) start(ctx context.Context) ([]*Column, error) {
	const op = "deck.start"

	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if _, err := s.driver.FindElement(RootSelector).Await(ctx); err != nil {
		if errors.Is(err, driver.ErrNoSuchElement) {
			err = &types.Error{
				Kind:    types.ErrNotLoggedIn,
				Op:      op,
				Message: "not logged in to the dashboard",
				Err:     err,
			}
		}
		return nil, spanError(span, err)
	}

	discovered, err := s.discoverColumns(ctx)
	if err != nil {
		return nil, spanError(span, err)
	}

	home := make([]*Column, 0, len(discovered))
	for _, c := range discovered {
		if c.Kind == HomeTimeline {
			home = append(home, c)
		}
	}
	span.SetAttributes(
		attribute.Int("deck.columns.discovered", len(discovered)),
		attribute.Int("deck.columns.home", len(home)),
	)
	if len(home) == 0 {
		return nil, spanError(span, &types.Error{
			Kind: types.ErrNoUsableColumn,
			Op:   op,
			Message: "no usable column is open on the dashboard; log in with a known account " +
				"and open its Home column",
		})
	}

	s.mu.Lock()
	if s.status != StatusStarting {
		s.mu.Unlock()
		return nil, spanError(span, types.StateErrorf(op, "dashboard session destroyed while starting"))
	}
	s.columns = home
	s.status = StatusRunning
	s.mu.Unlock()

	columnsWatched.Set(float64(len(home)))
	s.logger.Infof("running with %d home columns", len(home))
	s.refresh()
	return home, nil
}

// refresh runs one tick and, once it settles, schedules the next. No-op
// unless Running, which ends the loop after Destroy.
func (s *Session) refresh() {
	if s.Status() != StatusRunning {
		return
	}
	ticksTotal.Inc()
	tick := s.Fetch()
	go func() {
		<-tick.Done()
		s.scheduleRefresh()
	}()
}

func (s *Session) scheduleRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.timer = s.sched.After(s.pollInterval, s.refresh)
}

// Fetch queues one pass over the columns. A column that fails is skipped for
// this pass and reported in FetchResult.Failed. A state error from the driver
// means the session is gone; it destroys the dashboard and rejects.
func (s *Session) Fetch() *async.Value[FetchResult] {
	const op = "deck.fetch"
	if st := s.Status(); st != StatusRunning {
		return async.Rejected[FetchResult](types.StateErrorf(op, "cannot fetch while %s", st))
	}
	return async.Submit(s.loop, func(qctx context.Context) (FetchResult, error) {
		ctx, done := s.taskContext(qctx)
		defer done()
		return s.fetch(ctx)
	})
}

func (s *Session) fetch(ctx context.Context) (FetchResult, error) {
	ctx, span := tracer.Start(ctx, "deck.fetch")
	defer span.End()

	columns := s.Columns()
	res := FetchResult{Columns: len(columns)}
	for _, c := range columns {
		n, err := s.fetchColumn(ctx, c)
		if err == nil {
			res.Items += n
			continue
		}
		if errors.Is(err, types.ErrState) || ctx.Err() != nil {
			s.logger.Errorf("fetch aborted: %v", err)
			s.Destroy()
			return res, spanError(span, err)
		}
		s.logger.Errorf("skipping %s column of %s this tick: %v", c.Kind, c.ScreenName(), err)
		span.RecordError(err)
		res.Failed = append(res.Failed, err)
	}

	span.SetAttributes(
		attribute.Int("deck.columns", res.Columns),
		attribute.Int("deck.items", res.Items),
		attribute.Int("deck.failed", len(res.Failed)),
	)
	return res, nil
}

// fetchColumn extracts new ids, looks them up, advances the cursor and
// publishes. It returns the number of items looked up.
func (s *Session) fetchColumn(ctx context.Context, c *Column) (int, error) {
	const op = "deck.fetch"

	raw, err := s.driver.ExecuteScript(extractScript, extractArgs(c)...).Await(ctx)
	if err != nil {
		columnFailures.WithLabelValues("extract").Inc()
		return 0, types.WrapError(types.ErrProtocol, op, fmt.Errorf("extracting ids: %w", err))
	}
	ids, err := parseIDs(raw)
	if err != nil {
		columnFailures.WithLabelValues("extract").Inc()
		return 0, types.WrapError(types.ErrProtocol, op, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	items, err := s.lookup.Lookup(ctx, c.Account, ids)
	if err != nil {
		columnFailures.WithLabelValues("lookup").Inc()
		return 0, types.WrapError(types.ErrProtocol, op, fmt.Errorf("looking up %d ids: %w", len(ids), err))
	}

	// Only after a successful lookup, so a failed one is retried next tick.
	c.Advance(ids[0])

	owner := c.ScreenName()
	byTopic := map[types.Topic][]types.Item{
		types.TopicUpdated: items,
		types.TopicMention: types.FilterItems(items, func(it types.Item) bool { return it.AddressedTo(owner) }),
		types.TopicMyPost:  types.FilterItems(items, func(it types.Item) bool { return it.AuthoredBy(owner) }),
	}
	for _, topic := range types.FeedTopics {
		batch := byTopic[topic]
		if err := s.publisher.Publish(ctx, topic, owner, batch); err != nil {
			publishErrors.WithLabelValues(string(topic)).Inc()
			s.logger.Errorf("publishing %s for %s: %v", topic, owner, err)
			continue
		}
		itemsTotal.WithLabelValues(string(topic)).Add(float64(len(batch)))
	}
	s.logger.Debugf("%s: %d new items, cursor %s", owner, len(items), c.Cursor())
	return len(items), nil
}

// Destroy tears the driver down unless already destroyed and ends the loop.
// Commands already queued on the driver still run. Safe to call repeatedly.
func (s *Session) Destroy() *async.Value[struct{}] {
	if !s.markDestroyed() {
		return async.Resolved(struct{}{})
	}
	s.logger.Infof("destroying dashboard session")
	return s.driver.Destroy()
}

// Shutdown is the process-exit path: it ends the loop and tears the driver
// down synchronously without waiting on its queue.
func (s *Session) Shutdown() {
	s.markDestroyed()
	s.driver.Shutdown()
}

// markDestroyed moves to Destroyed and reports whether this call did so.
func (s *Session) markDestroyed() bool {
	s.mu.Lock()
	if s.status == StatusDestroyed {
		s.mu.Unlock()
		return false
	}
	s.status = StatusDestroyed
	s.columns = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	columnsWatched.Set(0)
	s.cancel()
	s.loop.Close()
	return true
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, types.ErrNotLoggedIn):
		return "not_logged_in"
	case errors.Is(err, types.ErrNoUsableColumn):
		return "no_usable_column"
	case errors.Is(err, types.ErrInitialization):
		return "initialization"
	case errors.Is(err, types.ErrConfiguration):
		return "configuration"
	case errors.Is(err, types.ErrState):
		return "state"
	default:
		return "other"
	}
}
