package nlp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nfe-extract/internal/resilience"
	"github.com/sells-group/nfe-extract/pkg/anthropic"
)

const entitySchema = `{
  "type": "object",
  "required": ["entities"],
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "text"],
        "properties": {
          "label": {"type": "string", "minLength": 1},
          "text": {"type": "string"}
        }
      }
    }
  }
}`

const systemPrompt = `You label entities in Brazilian invoice (NF-e/DANFE) text.
Reply with JSON only: {"entities":[{"label":"...","text":"..."}]}.
Allowed labels: NUMERO_NF, DATA_EMISSAO, CNPJ_EMITENTE, CNPJ_DESTINATARIO,
NOME_EMITENTE, NOME_DESTINATARIO, VALOR_TOTAL.
Copy each value exactly as it appears in the text. Dates use DD/MM/YYYY.
Omit labels you cannot find.`

// ClaudeConfig configures ClaudeOracle.
type ClaudeConfig struct {
	Model      string
	MaxTokens  int64
	RatePerSec float64
}

// ClaudeOracle recognizes entities by prompting an Anthropic model and
// validating its JSON reply.
type ClaudeOracle struct {
	client  anthropic.Client
	cfg     ClaudeConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	schema  *jsonschema.Schema
}

// NewClaudeOracle returns an oracle backed by client.
func NewClaudeOracle(client anthropic.Client, cfg ClaudeConfig) (*ClaudeOracle, error) {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	schema, err := jsonschema.CompileString("entities.json", entitySchema)
	if err != nil {
		return nil, eris.Wrap(err, "nlp: compile entity schema")
	}
	return &ClaudeOracle{
		client:  client,
		cfg:     cfg,
		limiter: resilience.NewLimiter(cfg.RatePerSec),
		breaker: resilience.NewCircuitBreaker("anthropic", 5, time.Minute),
		schema:  schema,
	}, nil
}

// RecognizeEntities implements Oracle.
func (o *ClaudeOracle) RecognizeEntities(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nlp: rate limit")
	}

	zero := 0.0
	resp, err := resilience.Execute(ctx, o.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return o.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       o.cfg.Model,
			MaxTokens:   o.cfg.MaxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: text}},
			Temperature: &zero,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "nlp: recognize entities")
	}
	resp.Usage.LogCost(o.cfg.Model, "entity_oracle")

	ents, err := o.parse(resp.Text())
	if err != nil {
		return nil, err
	}
	zap.L().Debug("nlp: entities recognized", zap.Int("count", len(ents)))
	return ents, nil
}

func (o *ClaudeOracle) parse(reply string) ([]Entity, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, eris.New("nlp: reply has no JSON object")
	}
	raw := reply[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, eris.Wrap(err, "nlp: decode reply")
	}
	if err := o.schema.Validate(doc); err != nil {
		return nil, eris.Wrap(err, "nlp: reply does not match entity schema")
	}

	var out struct {
		Entities []Entity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "nlp: decode entities")
	}
	return out.Entities, nil
}
