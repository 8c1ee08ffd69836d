package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const analyzeAPIVersion = "2024-02-01"

// AzureVision generates alt-text captions via the Azure AI Vision image
// analysis API. When the primary caption comes back empty it falls back to
// the top-ranked dense caption.
type AzureVision struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// AzureVisionOption configures an AzureVision client.
type AzureVisionOption func(*AzureVision)

// WithAzureHTTPClient overrides the HTTP client.
func WithAzureHTTPClient(hc *http.Client) AzureVisionOption {
	return func(c *AzureVision) { c.httpClient = hc }
}

// NewAzureVision creates an Azure Vision caption client.
func NewAzureVision(endpoint, apiKey string, logger *slog.Logger, opts ...AzureVisionOption) *AzureVision {
	c := &AzureVision{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate implements Generator for KindCaption.
func (c *AzureVision) Generate(ctx context.Context, kind Kind, imageURL string) (string, error) {
	if kind != KindCaption {
		return "", &Error{Kind: ErrClient, Op: "azure-caption", Err: fmt.Errorf("unsupported kind %q", kind)}
	}
	if c.endpoint == "" || c.apiKey == "" {
		return "", &Error{Kind: ErrClient, Op: "azure-caption", Err: fmt.Errorf("Azure Vision endpoint or key is not configured")}
	}

	caption, err := c.analyzeCaption(ctx, imageURL)
	if err != nil {
		return "", err
	}
	if caption != "" {
		return caption, nil
	}

	// Primary caption came back blank: try dense captions and take the
	// highest-ranked one.
	return c.analyzeDenseCaptions(ctx, imageURL)
}

var _ Generator = (*AzureVision)(nil)

func (c *AzureVision) analyzeCaption(ctx context.Context, imageURL string) (string, error) {
	apiURL := c.endpoint + "/computervision/imageanalysis:analyze" +
		"?api-version=" + analyzeAPIVersion +
		"&features=caption&language=en&genderNeutralCaption=true"

	data, err := c.post(ctx, apiURL, "azure-caption", imageURL)
	if err != nil {
		return "", err
	}

	var parsed struct {
		CaptionResult struct {
			Text string `json:"text"`
		} `json:"captionResult"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: ErrClient, Op: "azure-caption", Err: fmt.Errorf("decode response: %w", err)}
	}
	return strings.TrimSpace(parsed.CaptionResult.Text), nil
}

func (c *AzureVision) analyzeDenseCaptions(ctx context.Context, imageURL string) (string, error) {
	apiURL := c.endpoint + "/computervision/imageanalysis:analyze" +
		"?api-version=" + analyzeAPIVersion +
		"&features=denseCaptions&language=en"

	data, err := c.post(ctx, apiURL, "azure-denseCaptions", imageURL)
	if err != nil {
		return "", err
	}

	var parsed struct {
		DenseCaptionsResult struct {
			Values []struct {
				Text string `json:"text"`
			} `json:"values"`
		} `json:"denseCaptionsResult"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: ErrClient, Op: "azure-denseCaptions", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.DenseCaptionsResult.Values) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parsed.DenseCaptionsResult.Values[0].Text), nil
}

func (c *AzureVision) post(ctx context.Context, apiURL, op, imageURL string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"url": imageURL})
	if err != nil {
		return nil, &Error{Kind: ErrClient, Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: ErrClient, Op: op, Err: err}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	data := drainBody(resp)

	if resp.StatusCode/100 != 2 {
		err := classifyResponse(op, resp, data)
		if strings.Contains(string(data), "InvalidImageSize") {
			c.logger.Warn("azure_image_too_large", slog.String("op", op))
		} else {
			c.logger.Warn("azure_request_failed",
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
				slog.String("error", err.Error()))
		}
		return nil, err
	}
	return data, nil
}
