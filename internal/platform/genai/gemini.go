package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 60 * time.Second
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiClient calls the generateContent endpoint of the Gemini API.
type GeminiClient struct {
	http   *resty.Client
	model  string
	logger zerolog.Logger
}

var _ Model = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini model client.
func NewGeminiClient(cfg GeminiConfig, logger zerolog.Logger) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &GeminiClient{
		http:   client,
		model:  cfg.Model,
		logger: logger.With().Str("component", "genai").Str("model", cfg.Model).Logger(),
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the prompt and returns the JSON text of the first
// candidate.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: toGeminiParts(req.Parts)}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		},
	}

	var result geminiResponse
	var apiErr geminiError
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", c.model))
	if err != nil {
		c.logger.Error().Err(err).Msg("generateContent request failed")
		return nil, fmt.Errorf("call model: %w", err)
	}
	if resp.IsError() {
		c.logger.Error().
			Int("status_code", resp.StatusCode()).
			Str("status", apiErr.Error.Status).
			Msg("model returned error")
		return nil, fmt.Errorf("model error: %s (status %d)", apiErr.Error.Message, resp.StatusCode())
	}
	c.logger.Debug().Dur("elapsed", time.Since(start)).Msg("generateContent")

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return nil, errors.New("model returned no candidates")
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := stripFence(sb.String())
	if text == "" {
		return nil, errors.New("model returned an empty response")
	}
	return json.RawMessage(text), nil
}

func toGeminiParts(parts []Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if p.Media != nil {
			out = append(out, geminiPart{InlineData: &geminiInlineData{MimeType: p.Media.MimeType, Data: p.Media.Data}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

// stripFence removes a markdown code fence around a JSON response.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
