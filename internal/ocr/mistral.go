package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/nfe-extract/internal/config"
	"github.com/sells-group/nfe-extract/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR extracts text from PDFs and images using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewMistralOCR creates a MistralOCR extractor. If the model is empty, the default is used.
func NewMistralOCR(cfg config.MistralConfig) *MistralOCR {
	model := cfg.Model
	if model == "" {
		model = defaultMistralModel
	}
	retry := resilience.NewRetryConfig(cfg.MaxAttempts, 0, 0)
	retry.OnRetry = resilience.RetryLogger("mistral", "ocr")
	return &MistralOCR{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
		limiter:  resilience.NewLimiter(cfg.RatePerSec),
		retry:    retry,
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

var imageMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ExtractText sends the file at path to Mistral OCR and returns the page
// texts joined with a blank line.
func (m *MistralOCR) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}

	doc := mistralOCRDocument{Type: "document_url"}
	encoded := base64.StdEncoding.EncodeToString(data)
	if mime, ok := imageMIME[strings.ToLower(filepath.Ext(path))]; ok {
		doc.Type = "image_url"
		doc.ImageURL = "data:" + mime + ";base64," + encoded
	} else {
		doc.DocumentURL = "data:application/pdf;base64," + encoded
	}

	bodyBytes, err := json.Marshal(mistralOCRRequest{Model: m.model, Document: doc})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	ocrResp, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*mistralOCRResponse, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ocr: mistral rate limit")
		}
		return m.post(ctx, bodyBytes)
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, page := range ocrResp.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Markdown)
	}
	return sb.String(), nil
}

func (m *MistralOCR) post(ctx context.Context, body []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("ocr: mistral", resp.StatusCode, respBody)
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return &ocrResp, nil
}
