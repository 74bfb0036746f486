package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemPredicates(t *testing.T) {
	tests := []struct {
		name      string
		item      Item
		owner     string
		addressed bool
		authored  bool
	}{
		{
			name:  "plain item from someone else",
			item:  Item{ID: "1", User: User{ScreenName: "alice"}},
			owner: "bob",
		},
		{
			name:      "reply to owner",
			item:      Item{ID: "2", User: User{ScreenName: "alice"}, InReplyToScreenName: "Bob"},
			owner:     "bob",
			addressed: true,
		},
		{
			name:      "mention of owner",
			item:      Item{ID: "3", User: User{ScreenName: "alice"}, Mentions: []string{"@carol", "@bob"}},
			owner:     "bob",
			addressed: true,
		},
		{
			name:     "owner's own post",
			item:     Item{ID: "4", User: User{ScreenName: "bob"}},
			owner:    "bob",
			authored: true,
		},
		{
			name:  "empty owner matches nothing",
			item:  Item{ID: "5", User: User{ScreenName: ""}},
			owner: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.addressed, tt.item.AddressedTo(tt.owner))
			assert.Equal(t, tt.authored, tt.item.AuthoredBy(tt.owner))
		})
	}
}

func TestFilterItems(t *testing.T) {
	items := []Item{
		{ID: "c", User: User{ScreenName: "me"}},
		{ID: "b", User: User{ScreenName: "you"}},
		{ID: "a", User: User{ScreenName: "me"}},
	}
	mine := FilterItems(items, func(i Item) bool { return i.AuthoredBy("me") })
	assert.Equal(t, []string{"c", "a"}, []string{mine[0].ID, mine[1].ID})
	assert.Empty(t, FilterItems(nil, func(Item) bool { return true }))
}

func TestNewFeedEvent(t *testing.T) {
	ev := NewFeedEvent(TopicMention, "me", []Item{{ID: "1"}})
	assert.Equal(t, TopicMention, ev.Topic)
	assert.Equal(t, "me", ev.Account)
	assert.Len(t, ev.Items, 1)
	assert.False(t, ev.Timestamp.IsZero())

	act := NewActivityEvent("hello")
	assert.Equal(t, TopicActivity, act.Topic)
	assert.Equal(t, "hello", act.Message)
}

func TestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrInitialization, "driver.init", cause)

	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrState)
	assert.Equal(t, "driver.init: initialization error: connection refused", err.Error())

	wrapped := fmt.Errorf("start: %w", err)
	assert.True(t, IsStartupError(wrapped))
	assert.False(t, IsStartupError(StateErrorf("deck.start", "status is %s", "running")))

	var typed *Error
	assert.ErrorAs(t, wrapped, &typed)
	assert.Equal(t, "driver.init", typed.Op)
}

func TestUserMessage(t *testing.T) {
	err := NewError(ErrNotLoggedIn, "deck.start", "you do not appear to be logged in to the dashboard")
	assert.Equal(t, "you do not appear to be logged in to the dashboard", UserMessage(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}
