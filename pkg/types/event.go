package types

import (
	"strings"
	"time"
)

// Topic names a class of event published on the bus.
type Topic string

const (
	TopicUpdated  Topic = "updated"  // TopicUpdated carries every newly observed item.
	TopicMention  Topic = "mention"  // TopicMention carries items addressed to the account owner.
	TopicMyPost   Topic = "mypost"   // TopicMyPost carries items authored by the account owner.
	TopicActivity Topic = "activity" // TopicActivity carries user-visible notifications.
)

// FeedTopics lists the topics published by every fetch, in publish order.
var FeedTopics = []Topic{TopicUpdated, TopicMention, TopicMyPost}

// User is the author of an item.
type User struct {
	ID         string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// Item is one feed entry as returned by the batched lookup API.
type Item struct {
	ID                  string    `json:"id_str"`
	Text                string    `json:"text"`
	CreatedAt           time.Time `json:"created_at"`
	User                User      `json:"user"`
	InReplyToScreenName string    `json:"in_reply_to_screen_name,omitempty"`
	Mentions            []string  `json:"mentions,omitempty"`
}

// AddressedTo reports whether the item replies to or mentions screenName.
func (i Item) AddressedTo(screenName string) bool {
	if screenName == "" {
		return false
	}
	if strings.EqualFold(i.InReplyToScreenName, screenName) {
		return true
	}
	for _, m := range i.Mentions {
		if strings.EqualFold(strings.TrimPrefix(m, "@"), screenName) {
			return true
		}
	}
	return false
}

// AuthoredBy reports whether screenName wrote the item.
func (i Item) AuthoredBy(screenName string) bool {
	return screenName != "" && strings.EqualFold(i.User.ScreenName, screenName)
}

// FilterItems returns the items for which keep returns true, preserving order.
func FilterItems(items []Item, keep func(Item) bool) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// FeedEvent is the payload published on the bus for one topic.
type FeedEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Topic is the bus topic the event was published under.
	Topic Topic `json:"topic"`

	// Account is the screen name of the account the column belongs to.
	Account string `json:"account"`

	// Items are the items for this topic, freshest first.
	Items []Item `json:"items,omitempty"`

	// Message is set for activity notifications.
	Message string `json:"message,omitempty"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewFeedEvent creates an event carrying items for a feed topic.
func NewFeedEvent(topic Topic, account string, items []Item) *FeedEvent {
	return &FeedEvent{
		Topic:     topic,
		Account:   account,
		Items:     items,
		Timestamp: time.Now(),
	}
}

// NewActivityEvent creates a user-visible notification event.
func NewActivityEvent(message string) *FeedEvent {
	return &FeedEvent{
		Topic:     TopicActivity,
		Message:   message,
		Timestamp: time.Now(),
	}
}
