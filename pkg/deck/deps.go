package deck

import (
	"context"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/async"
	"github.com/entrhq/deckfeed/pkg/driver"
	"github.com/entrhq/deckfeed/pkg/types"
)

// Driver is the queued remote session a dashboard runs on. *driver.Handle
// implements it.
type Driver interface {
	FindElement(selector string) *async.Value[driver.Element]
	FindElements(selector string) *async.Value[[]driver.Element]
	FindChild(parent driver.Element, selector string) *async.Value[driver.Element]
	Attribute(el driver.Element, name string) *async.Value[string]
	Text(el driver.Element) *async.Value[string]
	ExecuteScript(source string, args ...any) *async.Value[any]
	Destroy() *async.Value[struct{}]
	Shutdown()
}

var _ Driver = (*driver.Handle)(nil)

// ItemLookup hydrates item ids on behalf of an account.
//
//go:generate mockgen -package=deck -destination=mock_deps_test.go github.com/entrhq/deckfeed/pkg/deck ItemLookup,Publisher
type ItemLookup interface {
	Lookup(ctx context.Context, acct *accounts.Account, ids []string) ([]types.Item, error)
}

// Publisher delivers fetched items to subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic types.Topic, account string, items []types.Item) error
}
