package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/driver"
	"github.com/entrhq/deckfeed/pkg/driver/drivertest"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/scheduler"
	"github.com/entrhq/deckfeed/pkg/types"
)

const pollInterval = 4 * time.Second

var (
	alice = &accounts.Account{ID: "1", ScreenName: "alice", Token: "t-alice"}
	bob   = &accounts.Account{ID: "2", ScreenName: "bob", Token: "t-bob"}
)

// scriptCall is one recorded evaluation of the extraction script.
type scriptCall struct {
	container string
	cursor    any
	kind      string
}

type dashboard struct {
	t        *testing.T
	sess     *drivertest.Session
	launcher *drivertest.Launcher
	handle   *driver.Handle
	sched    *scheduler.Manual
	lookup   *MockItemLookup
	pub      *MockPublisher
	deck     *Session

	mu      sync.Mutex
	calls   []scriptCall
	results map[string][]func() (any, error)
}

func newDashboard(t *testing.T) *dashboard {
	t.Helper()
	ctrl := gomock.NewController(t)

	d := &dashboard{
		t:       t,
		sess:    drivertest.NewSession("s1"),
		sched:   scheduler.NewManual(),
		lookup:  NewMockItemLookup(ctrl),
		pub:     NewMockPublisher(ctrl),
		results: make(map[string][]func() (any, error)),
	}
	d.launcher = drivertest.NewLauncher(d.sess)
	d.sess.OnScript(d.runScript)
	return d
}

// start builds the driver and session. Call after the DOM is set up.
func (d *dashboard) start() *Session {
	d.t.Helper()
	d.handle = driver.New(d.launcher, driver.Config{
		Name:    "test",
		Browser: "chrome",
		URL:     "https://deck.example.test/",
	}, logging.Discard())
	d.deck = New(d.handle, Deps{
		Registry:  accounts.NewStatic(alice, bob),
		Lookup:    d.lookup,
		Publisher: d.pub,
	}, Options{
		PollInterval: pollInterval,
		Scheduler:    d.sched,
		Logger:       logging.Discard(),
	})
	d.t.Cleanup(d.deck.Shutdown)
	return d.deck
}

func (d *dashboard) loggedIn() *dashboard {
	d.sess.AddElements(RootSelector, "root")
	return d
}

// column adds a column-navigation item whose container has ref.
func (d *dashboard) column(ref, heading, attribution string) *dashboard {
	nav := "nav-" + ref
	d.sess.AddElements(NavItemSelector, nav)
	d.sess.SetAttribute(nav, DataColumnAttribute, ref)
	d.sess.AddElements(fmt.Sprintf(ContainerSelectorFormat, ref), ref)
	d.sess.AddChild(nav, HeadingSelector, nav+"-heading")
	d.sess.SetText(nav+"-heading", heading)
	d.sess.AddChild(nav, AttributionSelector, nav+"-attribution")
	d.sess.SetText(nav+"-attribution", attribution)
	return d
}

// extracts queues script results for a container. Once the queue is empty the
// script returns no ids.
func (d *dashboard) extracts(container string, results ...func() (any, error)) *dashboard {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[container] = append(d.results[container], results...)
	return d
}

func ids(v ...any) func() (any, error) {
	return func() (any, error) { return v, nil }
}

func fails(msg string) func() (any, error) {
	return func() (any, error) { return nil, errors.New(msg) }
}

func (d *dashboard) runScript(source string, args []any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(args) != 3 {
		return nil, fmt.Errorf("unexpected script args %v", args)
	}
	container, _ := args[0].(string)
	kind, _ := args[2].(string)
	d.calls = append(d.calls, scriptCall{container: container, cursor: args[1], kind: kind})

	queue := d.results[container]
	if len(queue) == 0 {
		return []any{}, nil
	}
	d.results[container] = queue[1:]
	return queue[0]()
}

func (d *dashboard) scriptCalls() []scriptCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]scriptCall(nil), d.calls...)
}

// waitTick waits until n script calls have been made and the next refresh is
// scheduled.
func (d *dashboard) waitTick(n int) {
	d.t.Helper()
	require.Eventually(d.t, func() bool {
		return len(d.scriptCalls()) >= n && d.sched.Pending() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSession_StartRetainsMatchedHomeColumns(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().
		column("c1", "Home", "@alice").
		column("c2", "Notifications", "@bob").
		column("c3", "Home", "@carol").
		column("c4", "Home", "@bob")
	s := d.start()

	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, d.sess.Element("c1"), columns[0].Element)
	assert.Same(t, alice, columns[0].Account)
	assert.Equal(t, d.sess.Element("c4"), columns[1].Element)
	assert.Same(t, bob, columns[1].Account)
	for _, c := range columns {
		assert.Equal(t, HomeTimeline, c.Kind)
	}
	assert.Equal(t, StatusRunning, s.Status())
	assert.Len(t, s.Columns(), 2)

	// The first tick runs straight away and only touches retained columns.
	d.waitTick(2)
	calls := d.scriptCalls()
	assert.Equal(t, "c1", calls[0].container)
	assert.Equal(t, "c4", calls[1].container)
	assert.Equal(t, "home_timeline", calls[0].kind)
}

func TestSession_StartTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)
	before := d.sess.Calls()

	again := s.Start()
	require.True(t, again.Settled())
	_, err = again.Await(ctx)
	assert.ErrorIs(t, err, types.ErrState)

	assert.Equal(t, StatusRunning, s.Status())
	assert.Equal(t, before, d.sess.Calls())
	assert.Equal(t, 1, d.sched.Pending())
}

func TestSession_StartAfterDestroyIsRejected(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Destroy().Await(ctx)
	require.NoError(t, err)

	_, err = s.Start().Await(ctx)
	assert.ErrorIs(t, err, types.ErrState)
	assert.Equal(t, StatusDestroyed, s.Status())
	assert.NotContains(t, d.sess.Calls(), "find "+RootSelector)
}

func TestSession_StartNotLoggedIn(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Start().Await(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotLoggedIn)
	assert.True(t, types.IsStartupError(err))
	assert.Equal(t, "not logged in to the dashboard", types.UserMessage(err))

	assert.Equal(t, StatusDestroyed, s.Status())
	assert.Eventually(t, func() bool { return d.sess.Closes() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.sched.Pending())
	assert.Empty(t, d.scriptCalls())
}

func TestSession_StartNoUsableColumn(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().
		column("c1", "Notifications", "@alice").
		column("c2", "Home", "@carol")
	s := d.start()

	_, err := s.Start().Await(ctx)
	assert.ErrorIs(t, err, types.ErrNoUsableColumn)
	assert.True(t, types.IsStartupError(err))
	assert.Equal(t, StatusDestroyed, s.Status())
	assert.Eventually(t, func() bool { return d.sess.Closes() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_StartInitializationFailure(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t)
	d.launcher.FailWith(errors.New("chrome not found"))
	s := d.start()

	_, err := s.Start().Await(ctx)
	assert.ErrorIs(t, err, types.ErrInitialization)
	assert.True(t, types.IsStartupError(err))
	assert.Equal(t, StatusDestroyed, s.Status())
}

func TestSession_FetchAdvancesCursorAndPublishes(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	d.extracts("c1", ids("c", "b", "a"))

	mine := types.Item{ID: "c", User: types.User{ScreenName: "alice"}}
	reply := types.Item{ID: "b", User: types.User{ScreenName: "bob"}, InReplyToScreenName: "alice"}
	other := types.Item{ID: "a", User: types.User{ScreenName: "bob"}}
	items := []types.Item{mine, reply, other}

	gomock.InOrder(
		d.lookup.EXPECT().Lookup(gomock.Any(), alice, []string{"c", "b", "a"}).Return(items, nil),
		d.pub.EXPECT().Publish(gomock.Any(), types.TopicUpdated, "alice", items).Return(nil),
		d.pub.EXPECT().Publish(gomock.Any(), types.TopicMention, "alice", []types.Item{reply}).Return(nil),
		d.pub.EXPECT().Publish(gomock.Any(), types.TopicMyPost, "alice", []types.Item{mine}).Return(nil),
	)

	s := d.start()
	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	assert.Nil(t, d.scriptCalls()[0].cursor)
	assert.Equal(t, "c", columns[0].Cursor())

	// Next tick passes the cursor and finds nothing new.
	assert.Equal(t, 1, d.sched.Advance(pollInterval))
	d.waitTick(2)
	assert.Equal(t, "c", d.scriptCalls()[1].cursor)
	assert.Equal(t, "c", columns[0].Cursor())
	assert.Equal(t, StatusRunning, s.Status())
}

func TestSession_EmptyExtractionSkipsLookupAndPublish(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	res, err := s.Fetch().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Columns: 1}, res)
	assert.Empty(t, columns[0].Cursor())
}

func TestSession_ColumnFailureSkipsOnlyThatColumn(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().
		column("c1", "Home", "@alice").
		column("c2", "Home", "@bob")
	d.extracts("c1", fails("stale column"), fails("stale column"))
	d.extracts("c2", ids("7"))

	item := types.Item{ID: "7", User: types.User{ScreenName: "carol"}}
	d.lookup.EXPECT().Lookup(gomock.Any(), bob, []string{"7"}).Return([]types.Item{item}, nil)
	d.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), "bob", gomock.Any()).Return(nil).Times(3)

	s := d.start()
	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(2)

	assert.Equal(t, StatusRunning, s.Status())
	assert.Empty(t, columns[0].Cursor())
	assert.Equal(t, "7", columns[1].Cursor())

	res, err := s.Fetch().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Columns)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0], types.ErrProtocol)
}

func TestSession_LookupFailureKeepsCursor(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	d.extracts("c1", ids("9"), ids("9"))

	gomock.InOrder(
		d.lookup.EXPECT().Lookup(gomock.Any(), alice, []string{"9"}).Return(nil, errors.New("503")),
		d.lookup.EXPECT().Lookup(gomock.Any(), alice, []string{"9"}).Return([]types.Item{{ID: "9"}}, nil),
	)
	d.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), "alice", gomock.Any()).Return(nil).Times(3)

	s := d.start()
	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)
	assert.Empty(t, columns[0].Cursor())

	d.sched.Advance(pollInterval)
	d.waitTick(2)
	assert.Equal(t, "9", columns[0].Cursor())
}

func TestSession_PublishFailureDoesNotStopLoop(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	d.extracts("c1", ids("1"))

	d.lookup.EXPECT().Lookup(gomock.Any(), alice, []string{"1"}).Return([]types.Item{{ID: "1"}}, nil)
	d.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), "alice", gomock.Any()).Return(errors.New("bus down")).Times(3)

	s := d.start()
	columns, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	assert.Equal(t, "1", columns[0].Cursor())
	assert.Equal(t, StatusRunning, s.Status())
}

func TestSession_DestroyEndsLoop(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	_, err = s.Destroy().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDestroyed, s.Status())
	assert.Empty(t, s.Columns())
	assert.Equal(t, 1, d.sess.Closes())
	assert.Equal(t, 0, d.sched.Pending())
	assert.Equal(t, 0, d.sched.Advance(pollInterval))

	_, err = s.Destroy().Await(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, d.sess.Closes())

	_, err = s.Fetch().Await(ctx)
	assert.ErrorIs(t, err, types.ErrState)
	assert.Len(t, d.scriptCalls(), 1)
}

func TestSession_DriverStateErrorDestroysSession(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	// The driver goes away underneath the dashboard.
	d.handle.Shutdown()

	_, err = s.Fetch().Await(ctx)
	assert.ErrorIs(t, err, types.ErrState)
	assert.Equal(t, StatusDestroyed, s.Status())
	assert.Equal(t, 0, d.sched.Pending())
}

func TestSession_ShutdownClosesSessionSynchronously(t *testing.T) {
	ctx := testContext(t)
	d := newDashboard(t).loggedIn().column("c1", "Home", "@alice")
	s := d.start()

	_, err := s.Start().Await(ctx)
	require.NoError(t, err)
	d.waitTick(1)

	s.Shutdown()
	assert.Equal(t, StatusDestroyed, s.Status())
	assert.Equal(t, 1, d.sess.Closes())

	s.Shutdown()
	_, err = s.Destroy().Await(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, d.sess.Closes())
}
