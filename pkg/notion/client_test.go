package notion

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestNewClient_RateLimit(t *testing.T) {
	c, ok := NewClient("test-token").(*notionClient)
	require.True(t, ok)
	assert.Equal(t, rate.Limit(DefaultRatePerSec), c.limiter.Limit())

	c = NewClient("test-token", WithRateLimit(10), WithMaxRetries(2)).(*notionClient)
	assert.Equal(t, rate.Limit(10), c.limiter.Limit())
	assert.Equal(t, 10, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0.5)).(*notionClient)
	assert.Equal(t, 1, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0)).(*notionClient)
	assert.Nil(t, c.limiter)
}

func TestThrottled(t *testing.T) {
	t.Run("cancelled wait", func(t *testing.T) {
		lim := rate.NewLimiter(rate.Limit(0.001), 1)
		lim.Allow()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		_, err := throttled(ctx, lim, "create page", func() (int, error) {
			called = true
			return 1, nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notion: rate limit")
		assert.False(t, called)
	})

	t.Run("wraps call error", func(t *testing.T) {
		_, err := throttled(context.Background(), nil, "update page p1", func() (int, error) {
			return 0, errors.New("conflict")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notion: update page p1")
	})

	t.Run("passes value through", func(t *testing.T) {
		v, err := throttled(context.Background(), nil, "query", func() (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}
