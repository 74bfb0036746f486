// Package statuses is the batched item lookup client used to hydrate the ids
// scraped from dashboard columns.
package statuses

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/types"
)

const (
	// DefaultBaseURL is the lookup API root.
	DefaultBaseURL = "https://api.twitter.com/1.1"

	// DefaultRequestsPerSecond keeps a steady poll well under the API quota.
	DefaultRequestsPerSecond = 1.0

	defaultBurst   = 3
	defaultTimeout = 30 * time.Second

	// MaxBatch is the largest id list accepted by one lookup call.
	MaxBatch = 100
)

// APIError is a non-200 response from the lookup API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lookup API error (status %d): %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client performs batched lookups on behalf of an account.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a client. Zero options take defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  opts.HTTPClient,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), defaultBurst),
	}
}

type wireUser struct {
	ID         string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

type wireStatus struct {
	ID                  string   `json:"id_str"`
	Text                string   `json:"text"`
	FullText            string   `json:"full_text"`
	CreatedAt           string   `json:"created_at"`
	User                wireUser `json:"user"`
	InReplyToScreenName string   `json:"in_reply_to_screen_name"`
	Entities            struct {
		UserMentions []struct {
			ScreenName string `json:"screen_name"`
		} `json:"user_mentions"`
	} `json:"entities"`
}

func (w wireStatus) item() types.Item {
	it := types.Item{
		ID:                  w.ID,
		Text:                w.Text,
		User:                types.User(w.User),
		InReplyToScreenName: w.InReplyToScreenName,
	}
	if it.Text == "" {
		it.Text = w.FullText
	}
	// "Wed Oct 10 20:19:24 +0000 2018"
	if t, err := time.Parse(time.RubyDate, w.CreatedAt); err == nil {
		it.CreatedAt = t
	}
	for _, m := range w.Entities.UserMentions {
		it.Mentions = append(it.Mentions, m.ScreenName)
	}
	return it
}

// Lookup fetches the items for ids with one request per MaxBatch ids. Results
// are returned in the order of ids; ids the API does not return are skipped.
func (c *Client) Lookup(ctx context.Context, acct *accounts.Account, ids []string) ([]types.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[string]types.Item, len(ids))
	for start := 0; start < len(ids); start += MaxBatch {
		end := min(start+MaxBatch, len(ids))
		batch, err := c.lookupBatch(ctx, acct, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, it := range batch {
			found[it.ID] = it
		}
	}

	items := make([]types.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := found[id]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

func (c *Client) lookupBatch(ctx context.Context, acct *accounts.Account, ids []string) ([]types.Item, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("id", strings.Join(ids, ","))
	q.Set("include_entities", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/statuses/lookup.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if acct != nil && acct.Token != "" {
		req.Header.Set("Authorization", "Bearer "+acct.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		msg := resp.Status
		if len(body) > 0 {
			msg = fmt.Sprintf("%s (raw: %s)", resp.Status, body)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var wire []wireStatus
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding lookup response: %w", err)
	}
	items := make([]types.Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.item())
	}
	return items, nil
}
