package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/plotark/plotark/internal/config"
	log "github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// safetySettings disable upstream thresholds; the API still hard-blocks
// some content and reports the reason via promptFeedback.
var safetySettings = []map[string]string{
	{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
	{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
}

// GeminiClient calls the Gemini generateContent API over HTTP.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a GeminiClient from config.
func NewGeminiClient(cfg config.GeneratorConfig) *GeminiClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents       []geminiContent     `json:"contents"`
	SafetySettings []map[string]string `json:"safetySettings"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateOutline sends the outline prompt upstream and interprets the
// response as text, a safety block, or a transport failure.
func (c *GeminiClient) GenerateOutline(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return Outcome{}, fmt.Errorf("generator: missing api key")
	}

	payload := generateRequest{
		Contents:       []geminiContent{{Parts: []geminiPart{{Text: BuildPrompt(req)}}}},
		SafetySettings: safetySettings,
	}
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return Outcome{}, fmt.Errorf("generator: marshal request: %w", errMarshal)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, errNew := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if errNew != nil {
		return Outcome{}, fmt.Errorf("generator: build request: %w", errNew)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(httpReq)
	if errDo != nil {
		return Outcome{}, fmt.Errorf("generator: call upstream: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("generator: close response body")
		}
	}()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if errRead != nil {
		return Outcome{}, fmt.Errorf("generator: read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{}, fmt.Errorf("generator: upstream status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return Outcome{}, fmt.Errorf("generator: decode response: %w", errUnmarshal)
	}

	text := collectText(parsed)
	if text == "" {
		reason := "Unknown"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason = parsed.PromptFeedback.BlockReason
		}
		return Outcome{Blocked: true, BlockReason: reason}, nil
	}
	return Outcome{Text: text}, nil
}

func collectText(resp generateResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ModelInfo describes an upstream model.
type ModelInfo struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// ListModels returns the upstream models that support generateContent.
func (c *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("generator: missing api key")
	}

	url := fmt.Sprintf("%s/models?key=%s", c.baseURL, c.apiKey)
	httpReq, errNew := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if errNew != nil {
		return nil, fmt.Errorf("generator: build request: %w", errNew)
	}

	resp, errDo := c.httpClient.Do(httpReq)
	if errDo != nil {
		return nil, fmt.Errorf("generator: list models: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator: upstream status %d", resp.StatusCode)
	}

	var parsed struct {
		Models []ModelInfo `json:"models"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&parsed); errDecode != nil {
		return nil, fmt.Errorf("generator: decode models: %w", errDecode)
	}

	supported := make([]ModelInfo, 0, len(parsed.Models))
	for _, model := range parsed.Models {
		for _, method := range model.SupportedGenerationMethods {
			if method == "generateContent" {
				supported = append(supported, model)
				break
			}
		}
	}
	return supported, nil
}
