package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/deckfeed/pkg/types"
)

// PlaywrightLauncher opens sessions through Playwright. Each session gets its
// own Playwright driver process so closing one never affects another.
type PlaywrightLauncher struct{}

// NewPlaywrightLauncher creates a launcher backed by Playwright.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

// browserType maps a case-insensitive browser name onto a Playwright engine
// and, for branded builds, a channel.
func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chromium":
		return pw.Chromium, "", nil
	case "chrome":
		return pw.Chromium, "chrome", nil
	case "msedge", "edge":
		return pw.Chromium, "msedge", nil
	case "firefox":
		return pw.Firefox, "", nil
	case "webkit", "safari":
		return pw.WebKit, "", nil
	default:
		return nil, "", types.NewError(types.ErrConfiguration, "driver.launch", fmt.Sprintf("unsupported browser %q", name))
	}
}

// engineName returns the Playwright browser to install for name.
func engineName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "firefox":
		return "firefox"
	case "webkit", "safari":
		return "webkit"
	default:
		return "chromium"
	}
}

// Launch starts browser and opens a single page.
func (l *PlaywrightLauncher) Launch(ctx context.Context, browser string, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Playwright output would interleave with our logs
	runOpts := &playwright.RunOptions{
		Browsers: []string{engineName(browser)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	bt, channel, err := browserType(pw, browser)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}
	if opts.Channel != "" {
		channel = opts.Channel
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	sess := &playwrightSession{id: uuid.NewString(), pw: pw}
	if opts.UserDataDir != "" {
		err = sess.launchPersistent(bt, channel, opts)
	} else {
		err = sess.launch(bt, channel, opts)
	}
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	sess.page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	return sess, nil
}

type playwrightSession struct {
	id      string
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (s *playwrightSession) launch(bt playwright.BrowserType, channel string, opts Options) error {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     opts.Args,
	}
	if channel != "" {
		launchOpts.Channel = &channel
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	s.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page
	return nil
}

// launchPersistent reuses a profile directory so an existing dashboard login
// survives restarts.
func (s *playwrightSession) launchPersistent(bt playwright.BrowserType, channel string, opts Options) error {
	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: &opts.Headless,
		Args:     opts.Args,
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if channel != "" {
		launchOpts.Channel = &channel
	}
	bctx, err := bt.LaunchPersistentContext(opts.UserDataDir, launchOpts)
	if err != nil {
		return fmt.Errorf("failed to launch persistent context: %w", err)
	}
	s.context = bctx

	if pages := bctx.Pages(); len(pages) > 0 {
		s.page = pages[0]
		return nil
	}
	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page
	return nil
}

func (s *playwrightSession) ID() string {
	return s.id
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("load")
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) wrap(h playwright.ElementHandle) Element {
	return NewElement(s.id, h)
}

func (s *playwrightSession) handle(el Element) (playwright.ElementHandle, error) {
	h, ok := el.Ref().(playwright.ElementHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("element reference of type %T is not a playwright handle", el.Ref())
	}
	return h, nil
}

func (s *playwrightSession) FindElement(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return Element{}, err
	}
	h, err := s.page.QuerySelector(selector)
	if err != nil {
		return Element{}, fmt.Errorf("selector query failed: %w", err)
	}
	if h == nil {
		return Element{}, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return s.wrap(h), nil
}

func (s *playwrightSession) FindElements(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	out := make([]Element, 0, len(hs))
	for _, h := range hs {
		out = append(out, s.wrap(h))
	}
	return out, nil
}

func (s *playwrightSession) FindChild(ctx context.Context, parent Element, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return Element{}, err
	}
	p, err := s.handle(parent)
	if err != nil {
		return Element{}, err
	}
	h, err := p.QuerySelector(selector)
	if err != nil {
		return Element{}, fmt.Errorf("selector query failed: %w", err)
	}
	if h == nil {
		return Element{}, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return s.wrap(h), nil
}

func (s *playwrightSession) Attribute(ctx context.Context, el Element, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := s.handle(el)
	if err != nil {
		return "", err
	}
	return h.GetAttribute(name)
}

func (s *playwrightSession) Text(ctx context.Context, el Element) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := s.handle(el)
	if err != nil {
		return "", err
	}
	return h.TextContent()
}

func (s *playwrightSession) ExecuteScript(ctx context.Context, source string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	converted := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(Element); ok {
			h, err := s.handle(el)
			if err != nil {
				return nil, err
			}
			converted[i] = h
			continue
		}
		converted[i] = a
	}
	return s.page.Evaluate(source, converted)
}

// Close releases the page, context, browser and driver process. Every step is
// attempted even if an earlier one fails.
func (s *playwrightSession) Close() error {
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
	}
	return errors.Join(errs...)
}
