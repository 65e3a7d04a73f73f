package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nfe-extract/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

func newOracle(t *testing.T, client anthropic.Client) *ClaudeOracle {
	t.Helper()
	o, err := NewClaudeOracle(client, ClaudeConfig{})
	require.NoError(t, err)
	return o
}

func TestClaudeOracle_RecognizeEntities(t *testing.T) {
	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			len(req.Messages) == 1 && req.Messages[0].Content == "NOTA FISCAL 000123" &&
			req.System != ""
	})).Return(reply("Here you go:\n"+`{"entities":[{"label":"NUMERO_NF","text":"000123"},{"label":"VALOR_TOTAL","text":"250,00"}]}`), nil)

	ents, err := newOracle(t, client).RecognizeEntities(context.Background(), "NOTA FISCAL 000123")
	require.NoError(t, err)
	assert.Equal(t, []Entity{
		{Label: LabelNumber, Text: "000123"},
		{Label: LabelTotal, Text: "250,00"},
	}, ents)
	client.AssertExpectations(t)
}

func TestClaudeOracle_RejectsInvalidReplies(t *testing.T) {
	tests := map[string]string{
		"no json":         "I could not find anything",
		"broken json":     `{"entities": [`,
		"schema mismatch": `{"entities":[{"label":"","text":"x"}]}`,
		"missing key":     `{"items":[]}`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			client := &mockClient{}
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(reply(text), nil)

			_, err := newOracle(t, client).RecognizeEntities(context.Background(), "texto da nota")
			assert.Error(t, err)
		})
	}
}

func TestClaudeOracle_ClientError(t *testing.T) {
	client := &mockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := newOracle(t, client).RecognizeEntities(context.Background(), "texto da nota")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestClaudeOracle_EmptyTextSkipsCall(t *testing.T) {
	client := &mockClient{}
	ents, err := newOracle(t, client).RecognizeEntities(context.Background(), "  \n")
	require.NoError(t, err)
	assert.Empty(t, ents)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestNoop(t *testing.T) {
	ents, err := Noop{}.RecognizeEntities(context.Background(), "qualquer texto")
	assert.NoError(t, err)
	assert.Nil(t, ents)
}
