package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/deckfeed/pkg/types"
)

// SubjectPrefix roots every deckfeed subject.
const SubjectPrefix = "deckfeed"

// Subject returns the bus subject for topic, e.g. "deckfeed.updated".
func Subject(topic types.Topic) string {
	return SubjectPrefix + "." + string(topic)
}

// Publisher encodes feed events onto a MessageBus.
type Publisher struct {
	bus MessageBus
}

// NewPublisher wraps b.
func NewPublisher(b MessageBus) *Publisher {
	return &Publisher{bus: b}
}

// Publish sends items for account under topic.
func (p *Publisher) Publish(ctx context.Context, topic types.Topic, account string, items []types.Item) error {
	return p.send(ctx, types.NewFeedEvent(topic, account, items))
}

// Notify publishes a user-visible notification on the activity topic.
func (p *Publisher) Notify(ctx context.Context, message string) error {
	return p.send(ctx, types.NewActivityEvent(message))
}

func (p *Publisher) send(ctx context.Context, ev *types.FeedEvent) error {
	ev.ID = ulid.Make().String()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Topic, err)
	}
	if err := p.bus.Publish(ctx, Subject(ev.Topic), data); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.Topic, err)
	}
	return nil
}

// SubscribeEvents decodes events published under subject (wildcards allowed)
// and hands them to fn. Undecodable messages are passed to onErr if set.
func SubscribeEvents(ctx context.Context, b MessageBus, subject string, fn func(*types.FeedEvent), onErr func(error)) (Subscription, error) {
	return b.Subscribe(ctx, subject, func(msg *Message) {
		var ev types.FeedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("decoding %s: %w", msg.Subject, err))
			}
			return
		}
		fn(&ev)
	})
}
