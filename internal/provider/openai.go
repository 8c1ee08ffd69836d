package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"

	titlePrompt = "You are naming a clothing product image for a storefront. " +
		"Output ONLY a concise 3-6 word title in Title Case. " +
		"DO NOT generate emojis, hashtags or raw filenames."

	tagsPrompt = "You are an image tagging assistant for a clothing store, that MUST analyze the image " +
		"and return ONLY a single line containing 6-12 short tags. " +
		"ALL lowercase, WITHOUT hashtags, ONLY using commas as separators. " +
		"Include the colors, types of garment, and the styles if they are relevant. " +
		"Example of tags : blue, jeans, louis vuitton, streetwear, y2k, summer"
)

// OpenAI generates titles and tags from an image URL using OpenAI's vision
// models. Each Generate call issues exactly one HTTP request; retrying is
// the caller's concern.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAI client.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL overrides the API base URL (used in tests).
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(c *OpenAI) { c.baseURL = u }
}

// WithOpenAIModel overrides the model name.
func WithOpenAIModel(m string) OpenAIOption {
	return func(c *OpenAI) { c.model = m }
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAI) { c.httpClient = hc }
}

// NewOpenAI creates an OpenAI vision client.
func NewOpenAI(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAI {
	c := &OpenAI{
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		model:      defaultOpenAIModel,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate implements Generator for KindTitle and KindTags.
func (c *OpenAI) Generate(ctx context.Context, kind Kind, imageURL string) (string, error) {
	if c.apiKey == "" {
		return "", &Error{Kind: ErrClient, Op: opName(kind), Err: fmt.Errorf("OpenAI API key is not configured")}
	}
	switch kind {
	case KindTitle:
		return c.generateTitle(ctx, imageURL)
	case KindTags:
		return c.generateTags(ctx, imageURL)
	default:
		return "", &Error{Kind: ErrClient, Op: opName(kind), Err: fmt.Errorf("unsupported kind %q", kind)}
	}
}

var _ Generator = (*OpenAI)(nil)

func opName(kind Kind) string {
	return "vision-" + string(kind)
}

// generateTitle asks the chat completions API for a short product title.
func (c *OpenAI) generateTitle(ctx context.Context, imageURL string) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"temperature": 0.3,
		"max_tokens":  20,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": titlePrompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
				},
			},
		},
	}

	data, err := c.post(ctx, "/v1/chat/completions", opName(KindTitle), body)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: ErrClient, Op: opName(KindTitle), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// generateTags asks the responses API for a comma-separated tag line.
func (c *OpenAI) generateTags(ctx context.Context, imageURL string) (string, error) {
	body := map[string]any{
		"model":             c.model,
		"temperature":       0.3,
		"max_output_tokens": 128,
		"input": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "input_text", "text": tagsPrompt},
					{"type": "input_image", "image_url": imageURL},
				},
			},
		},
	}

	data, err := c.post(ctx, "/v1/responses", opName(KindTags), body)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Output []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: ErrClient, Op: opName(KindTags), Err: fmt.Errorf("decode response: %w", err)}
	}

	for _, out := range parsed.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text, nil
			}
		}
	}
	// Older response shape
	if len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}
	return "", nil
}

// post issues one JSON POST and returns the raw 2xx body, or a classified
// *Error for anything else.
func (c *OpenAI) post(ctx context.Context, path, op string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: ErrClient, Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: ErrClient, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	data := drainBody(resp)

	if resp.StatusCode/100 != 2 {
		err := classifyResponse(op, resp, data)
		c.logger.Warn("openai_request_failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()))
		return nil, err
	}
	return data, nil
}
