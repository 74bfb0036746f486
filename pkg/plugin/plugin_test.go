package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/bus"
	"github.com/entrhq/deckfeed/pkg/config"
	"github.com/entrhq/deckfeed/pkg/deck"
	"github.com/entrhq/deckfeed/pkg/driver/drivertest"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/scheduler"
	"github.com/entrhq/deckfeed/pkg/types"
)

type noLookup struct{}

func (noLookup) Lookup(context.Context, *accounts.Account, []string) ([]types.Item, error) {
	return nil, nil
}

type harness struct {
	t        *testing.T
	cfg      *config.Manager
	sess     *drivertest.Session
	launcher *drivertest.Launcher
	plugin   *Plugin

	mu     sync.Mutex
	notes  []string
	events *bus.MemoryBus
}

func newHarness(t *testing.T, browser string) *harness {
	t.Helper()

	cfg, err := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, cfg.Set(config.SectionIDDeck, "settle_delay", "0s"))
	require.NoError(t, cfg.Set(config.SectionIDDeck, "browser", browser))

	h := &harness{
		t:      t,
		cfg:    cfg,
		sess:   drivertest.NewSession("s1"),
		events: bus.NewMemoryBus(),
	}
	h.launcher = drivertest.NewLauncher(h.sess)
	t.Cleanup(func() { h.events.Close() })

	_, err = bus.SubscribeEvents(context.Background(), h.events, bus.Subject(types.TopicActivity), func(ev *types.FeedEvent) {
		h.mu.Lock()
		h.notes = append(h.notes, ev.Message)
		h.mu.Unlock()
	}, nil)
	require.NoError(t, err)

	publisher := bus.NewPublisher(h.events)
	alice := &accounts.Account{ID: "1", ScreenName: "alice", Token: "t"}
	h.plugin = New(Deps{
		Config:    cfg,
		Launcher:  h.launcher,
		Registry:  accounts.NewStatic(alice),
		Lookup:    noLookup{},
		Publisher: publisher,
		Notifier:  publisher,
		Scheduler: scheduler.NewManual(),
		Logger:    logging.Discard(),
	})
	t.Cleanup(h.plugin.Shutdown)
	return h
}

// loggedIn lays out a dashboard with one home column for @alice.
func (h *harness) loggedIn() *harness {
	h.sess.AddElements(deck.RootSelector, "root")
	h.sess.AddElements(deck.NavItemSelector, "nav-c1")
	h.sess.SetAttribute("nav-c1", deck.DataColumnAttribute, "c1")
	h.sess.AddElements(fmt.Sprintf(deck.ContainerSelectorFormat, "c1"), "c1")
	h.sess.AddChild("nav-c1", deck.HeadingSelector, "heading")
	h.sess.SetText("heading", "Home")
	h.sess.AddChild("nav-c1", deck.AttributionSelector, "attribution")
	h.sess.SetText("attribution", "@alice")
	return h
}

func (h *harness) notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notes...)
}

func await[T any](t *testing.T, fn func(context.Context) (T, error)) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return fn(ctx)
}

func TestStart_LowercasesBrowserAndRuns(t *testing.T) {
	h := newHarness(t, "Chrome").loggedIn()

	columns, err := await(t, h.plugin.Start().Await)
	require.NoError(t, err)
	require.Len(t, columns, 1)

	assert.Equal(t, []string{"chrome"}, h.launcher.Browsers())
	require.NotNil(t, h.plugin.Session())
	assert.Equal(t, deck.StatusRunning, h.plugin.Session().Status())
	assert.Equal(t, []string{config.DefaultDashboardURL}, h.sess.Navigated())
	assert.Empty(t, h.notifications())
}

func TestStart_NoBrowserIsAConfigurationError(t *testing.T) {
	h := newHarness(t, "")

	_, err := await(t, h.plugin.Start().Await)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Zero(t, h.launcher.Launches())
	assert.Nil(t, h.plugin.Session())

	assert.Eventually(t, func() bool { return len(h.notifications()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, h.notifications()[0], "no browser")
}

func TestStart_NotLoggedInNotifiesOnceAndTearsDown(t *testing.T) {
	h := newHarness(t, "firefox")

	_, err := await(t, h.plugin.Start().Await)
	assert.ErrorIs(t, err, types.ErrNotLoggedIn)

	assert.Eventually(t, func() bool { return len(h.notifications()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "not logged in to the dashboard", h.notifications()[0])
	assert.Eventually(t, func() bool { return h.sess.Closes() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.plugin.Session() == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_LaunchFailureIsReported(t *testing.T) {
	h := newHarness(t, "webkit")
	h.launcher.FailWith(errors.New("no display"))

	_, err := await(t, h.plugin.Start().Await)
	assert.ErrorIs(t, err, types.ErrInitialization)
	assert.Eventually(t, func() bool { return len(h.notifications()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, h.notifications()[0], "no display")
}

func TestStart_ReplacesRunningSession(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()

	_, err := await(t, h.plugin.Start().Await)
	require.NoError(t, err)
	first := h.plugin.Session()

	_, err = await(t, h.plugin.Start().Await)
	require.NoError(t, err)

	assert.Equal(t, deck.StatusDestroyed, first.Status())
	assert.NotSame(t, first, h.plugin.Session())
	assert.Equal(t, 2, h.launcher.Launches())
}

func TestStop(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()

	_, err := await(t, h.plugin.Stop().Await)
	require.NoError(t, err, "stop without a session is a no-op")

	_, err = await(t, h.plugin.Start().Await)
	require.NoError(t, err)
	session := h.plugin.Session()

	_, err = await(t, h.plugin.Stop().Await)
	require.NoError(t, err)
	assert.Nil(t, h.plugin.Session())
	assert.Equal(t, deck.StatusDestroyed, session.Status())
	assert.Equal(t, 1, h.sess.Closes())
}

func TestOnConfigChange_EnabledTogglesSession(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()

	require.NoError(t, h.cfg.Set(config.SectionIDDeck, "poll_interval", "8s"))
	assert.Zero(t, h.launcher.Launches(), "only enabled restarts the session")

	require.NoError(t, h.cfg.Set(config.SectionIDDeck, config.KeyEnabled, true))
	session := h.plugin.Session()
	require.NotNil(t, session)
	assert.Eventually(t, func() bool { return session.Status() == deck.StatusRunning }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.cfg.Set(config.SectionIDDeck, config.KeyEnabled, false))
	assert.Nil(t, h.plugin.Session())
	assert.Equal(t, deck.StatusDestroyed, session.Status())
	assert.Eventually(t, func() bool { return h.sess.Closes() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOnConfigChange_IgnoresOtherSections(t *testing.T) {
	h := newHarness(t, "chrome")
	h.plugin.OnConfigChange(config.SectionIDLookup, config.KeyEnabled, true)
	h.plugin.OnConfigChange(config.SectionIDDeck, config.KeyEnabled, "yes")
	assert.Nil(t, h.plugin.Session())
	assert.Zero(t, h.launcher.Launches())
}

func TestBoot(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()
	h.plugin.Boot()
	assert.Nil(t, h.plugin.Session(), "disabled by default")

	// Enable without going through the manager so no listener fires.
	require.NoError(t, config.Deck(h.cfg).SetData(map[string]any{config.KeyEnabled: true}))
	h.plugin.Boot()
	require.NotNil(t, h.plugin.Session())
	assert.Eventually(t, func() bool { return h.launcher.Launches() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()

	_, err := await(t, h.plugin.Start().Await)
	require.NoError(t, err)
	session := h.plugin.Session()

	h.plugin.Shutdown()
	assert.Nil(t, h.plugin.Session())
	assert.Equal(t, deck.StatusDestroyed, session.Status())
	assert.Equal(t, 1, h.sess.Closes())

	h.plugin.Shutdown()
	assert.Equal(t, 1, h.sess.Closes())
}

func TestShutdown_AbortsSessionStillStopping(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()
	h.launcher.Hold()

	h.plugin.Start()
	require.Eventually(t, func() bool { return h.launcher.Launches() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.plugin.Stop().Await(stopCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "teardown is queued behind the held launch")
	assert.Nil(t, h.plugin.Session())
	assert.Equal(t, 1, h.plugin.Stopping())

	h.plugin.Shutdown()
	h.launcher.Release()

	assert.Eventually(t, func() bool { return h.sess.Closes() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.plugin.Stopping() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.sess.Navigated(), "bring-up must not continue after shutdown")
}

func TestStop_ForgetsSessionOnceTornDown(t *testing.T) {
	h := newHarness(t, "chrome").loggedIn()

	_, err := await(t, h.plugin.Start().Await)
	require.NoError(t, err)
	_, err = await(t, h.plugin.Stop().Await)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.plugin.Stopping() == 0 }, 2*time.Second, 10*time.Millisecond)
	h.plugin.Shutdown()
	assert.Equal(t, 1, h.sess.Closes())
}
