// Package notion wraps the Notion API and keeps an invoice ledger database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the subset of the Notion API the ledger needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// DefaultRatePerSec matches Notion's documented average request limit.
const DefaultRatePerSec = 3

type settings struct {
	ratePerSec float64
	retries    int
}

// ClientOption configures NewClient.
type ClientOption func(*settings)

// WithRateLimit throttles calls to rps requests per second. Zero or a
// negative value disables client-side throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(s *settings) { s.ratePerSec = rps }
}

// WithMaxRetries sets how often a rate-limited (429) call is retried by the
// underlying SDK.
func WithMaxRetries(n int) ClientOption {
	return func(s *settings) { s.retries = n }
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a throttled Client for the integration token.
func NewClient(token string, opts ...ClientOption) Client {
	s := settings{ratePerSec: DefaultRatePerSec}
	for _, opt := range opts {
		opt(&s)
	}

	var sdkOpts []notionapi.ClientOption
	if s.retries > 0 {
		sdkOpts = append(sdkOpts, notionapi.WithRetry(s.retries))
	}

	c := &notionClient{inner: notionapi.NewClient(notionapi.Token(token), sdkOpts...)}
	if s.ratePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.ratePerSec), max(int(s.ratePerSec), 1))
	}
	return c
}

// throttled waits for the limiter, then runs call. Errors are wrapped with op.
func throttled[T any](ctx context.Context, lim *rate.Limiter, op string, call func() (T, error)) (T, error) {
	var zero T
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	v, err := call()
	if err != nil {
		return zero, eris.Wrap(err, "notion: "+op)
	}
	return v, nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return throttled(ctx, c.limiter, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.limiter, "create page", func() (*notionapi.Page, error) {
		return c.inner.Page.Create(ctx, req)
	})
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.limiter, "update page "+pageID, func() (*notionapi.Page, error) {
		return c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}
