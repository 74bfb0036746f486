package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/async"
	"github.com/entrhq/deckfeed/pkg/driver"
)

// Dashboard DOM selectors
const (
	RootSelector = "#container"

	NavItemSelector = "#column-navigator > div.js-column-nav-list > ul.js-int-scroller > li.column-nav-item"

	// ContainerSelectorFormat takes the nav item's data-column value.
	ContainerSelectorFormat = "#container > div.app-columns > section.column[data-column=%s] > div.column-holder" +
		" > div.column-panel > div.column-content > div.column-scroller > div.chirp-container"

	HeadingSelector     = "a.column-nav-link > div.js-column-title > span.column-heading"
	AttributionSelector = "a.column-nav-link > div.js-column-title > span.attribution"

	DataColumnAttribute = "data-column"
)

// navEntry is what discovery reads from one column-navigation item.
type navEntry struct {
	Container   driver.Element
	Heading     string
	Attribution string
}

// resolveColumns turns navigation entries into columns linked to registry
// accounts. Entries whose attribution matches no account are dropped; DOM
// order is preserved.
func resolveColumns(entries []navEntry, registry accounts.Registry) []*Column {
	columns := make([]*Column, 0, len(entries))
	for _, e := range entries {
		screenName := strings.TrimPrefix(strings.TrimSpace(e.Attribution), "@")
		acct, ok := registry.Lookup(screenName)
		if !ok {
			continue
		}
		columns = append(columns, NewColumn(e.Container, ParseKind(strings.TrimSpace(e.Heading)), acct))
	}
	return columns
}

// childText reads the text of parent's first descendant matching selector.
// A missing descendant reads as "".
func childText(ctx context.Context, d Driver, parent driver.Element, selector string) *async.Value[string] {
	found := async.Trap(d.FindChild(parent, selector), func(err error) (driver.Element, error) {
		if errors.Is(err, driver.ErrNoSuchElement) {
			return driver.Element{}, nil
		}
		return driver.Element{}, err
	})
	return async.Then(found, func(el driver.Element) (string, error) {
		if el.IsZero() {
			return "", nil
		}
		return d.Text(el).Await(ctx)
	})
}

// discoverColumns reads every column-navigation item in DOM order and
// resolves it against registry. Must run inside a task.
func (s *Session) discoverColumns(ctx context.Context) ([]*Column, error) {
	items, err := s.driver.FindElements(NavItemSelector).Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}

	entries := make([]navEntry, 0, len(items))
	for i, item := range items {
		dataColumn := s.driver.Attribute(item, DataColumnAttribute)
		heading := childText(ctx, s.driver, item, HeadingSelector)
		attribution := childText(ctx, s.driver, item, AttributionSelector)

		dc, err := dataColumn.Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("column %d: reading %s: %w", i, DataColumnAttribute, err)
		}
		container, err := s.driver.FindElement(fmt.Sprintf(ContainerSelectorFormat, dc)).Await(ctx)
		if errors.Is(err, driver.ErrNoSuchElement) {
			s.logger.Warnf("column %d (%s): no item container, skipping", i, dc)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("column %d: finding container: %w", i, err)
		}
		h, err := heading.Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("column %d: reading heading: %w", i, err)
		}
		a, err := attribution.Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("column %d: reading attribution: %w", i, err)
		}

		entries = append(entries, navEntry{Container: container, Heading: h, Attribution: a})
	}

	columns := resolveColumns(entries, s.registry)
	s.logger.Debugf("discovered %d columns, %d linked to accounts", len(entries), len(columns))
	return columns, nil
}
