package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_GenerateTitle_ParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Vintage Red Jacket"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
	out, err := c.Generate(context.Background(), KindTitle, "https://img.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Vintage Red Jacket", out)
}

func TestOpenAI_GenerateTags_ParsesResponsesOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"content":[{"type":"reasoning","text":""},{"type":"output_text","text":"red, jacket, vintage"}]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
	out, err := c.Generate(context.Background(), KindTags, "https://img.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "red, jacket, vintage", out)
}

func TestOpenAI_Classify429WithRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), KindTags, "u")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrRateLimited, pe.Kind)
	assert.Equal(t, 3*time.Second, pe.RetryAfter)
	assert.True(t, IsRateLimited(err))
}

func TestOpenAI_ClassifyBodyRateLimitMarker(t *testing.T) {
	// Some providers report rate limiting with a non-429 status but a
	// marker in the body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for gpt-4o-mini"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), KindTitle, "u")
	assert.True(t, IsRateLimited(err))
}

func TestOpenAI_ClassifyServerAndClientErrors(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
		{http.StatusBadRequest, ErrClient},
		{http.StatusUnauthorized, ErrClient},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
		}))

		c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
		_, err := c.Generate(context.Background(), KindTitle, "u")
		srv.Close()

		var pe *Error
		require.ErrorAs(t, err, &pe, "status %d", tt.status)
		assert.Equal(t, tt.want, pe.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, pe.Status)
	}
}

func TestOpenAI_TransportErrorsAreRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed server -> connection refused

	c := NewOpenAI("test-key", testLogger(), WithOpenAIBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), KindTitle, "u")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrTransport, pe.Kind)
}

func TestOpenAI_MissingKeyIsClientError(t *testing.T) {
	c := NewOpenAI("", testLogger())
	_, err := c.Generate(context.Background(), KindTitle, "u")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrClient, pe.Kind)
}

func TestAzureVision_CaptionWithDenseFallback(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("features") == "caption" {
			_, _ = w.Write([]byte(`{"captionResult":{"text":""}}`))
			return
		}
		_, _ = w.Write([]byte(`{"denseCaptionsResult":{"values":[{"text":"a red jacket on a hanger"},{"text":"a sleeve"}]}}`))
	}))
	defer srv.Close()

	c := NewAzureVision(srv.URL, "secret", testLogger())
	out, err := c.Generate(context.Background(), KindCaption, "https://img.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "a red jacket on a hanger", out)
	assert.Equal(t, 2, calls)
}

func TestAzureVision_PrimaryCaptionWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"captionResult":{"text":"a person wearing blue jeans"}}`))
	}))
	defer srv.Close()

	c := NewAzureVision(srv.URL, "secret", testLogger())
	out, err := c.Generate(context.Background(), KindCaption, "u")
	require.NoError(t, err)
	assert.Equal(t, "a person wearing blue jeans", out)
}

func TestAzureVision_RejectsWrongKind(t *testing.T) {
	c := NewAzureVision("https://example.invalid", "k", testLogger())
	_, err := c.Generate(context.Background(), KindTitle, "u")
	assert.Error(t, err)
}

func TestRouter_DispatchesByKind(t *testing.T) {
	llm := &scriptedGenerator{results: []scriptedResult{{text: "llm"}}}
	caption := &scriptedGenerator{results: []scriptedResult{{text: "caption"}}}
	router := Router{LLM: llm, Caption: caption}

	out, err := router.Generate(context.Background(), KindTitle, "u")
	require.NoError(t, err)
	assert.Equal(t, "llm", out)

	out, err = router.Generate(context.Background(), KindCaption, "u")
	require.NoError(t, err)
	assert.Equal(t, "caption", out)
}
