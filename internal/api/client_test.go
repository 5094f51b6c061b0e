package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/simeneide/djuplet/internal/config"
	"github.com/simeneide/djuplet/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient() *Client {
	logger := testLogger()
	c := NewClient(logger, metrics.NewCollector(logger))
	c.baseRetryDelay = time.Millisecond // fast retries in tests
	return c
}

func okResponse(content string) string {
	return `{
		"id": "test-123",
		"object": "chat.completion",
		"created": 1234567890,
		"model": "test-model",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "` + content + `"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
}

func TestChatCompletionSuccess(t *testing.T) {
	var gotReq ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q, want 'Bearer test-key'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("request body is not valid JSON: %v", err)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okResponse("Test response")))
	}))
	defer server.Close()

	client := testClient()
	modelCfg := config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "test-model",
		MaxOutputTokens:    100,
		RateLimitPerMinute: 600,
	}

	resp, err := client.ChatCompletion(
		context.Background(),
		modelCfg,
		"test-key",
		[]Message{{Role: "system", Content: "You are a helpful assistant"}, {Role: "user", Content: "Test message"}},
	)
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content != "Test response" {
		t.Errorf("content = %q, want 'Test response'", resp.Choices[0].Message.Content)
	}

	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("non-streaming request must not set stream")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
}

func TestChatCompletionRetryOn500(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "Server error"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okResponse("success")))
	}))
	defer server.Close()

	client := testClient()
	modelCfg := config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "test",
		MaxRetries:         3,
		RateLimitPerMinute: 6000,
	}

	resp, err := client.ChatCompletion(context.Background(), modelCfg, "test", []Message{{Role: "user", Content: "test"}})
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("attempts = %d, want 3 (2 retries)", attemptCount)
	}
	if resp.Choices[0].Message.Content != "success" {
		t.Errorf("content = %q, want 'success'", resp.Choices[0].Message.Content)
	}
}

func TestChatCompletionNoRetryOn400(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client := testClient()
	modelCfg := config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "test",
		MaxRetries:         3,
		RateLimitPerMinute: 6000,
	}

	_, err := client.ChatCompletion(context.Background(), modelCfg, "test", []Message{{Role: "user", Content: "test"}})
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if attemptCount != 1 {
		t.Errorf("attempts = %d, want 1 (no retries on client errors)", attemptCount)
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != "bad request" {
		t.Errorf("message = %q, want provider message", apiErr.Message)
	}
}

func TestChatCompletionMaxRetriesExceeded(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer server.Close()

	client := testClient()
	modelCfg := config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "test",
		MaxRetries:         2,
		MaxBackoffSeconds:  1,
		RateLimitPerMinute: 6000,
	}

	_, err := client.ChatCompletion(context.Background(), modelCfg, "test", []Message{{Role: "user", Content: "test"}})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attemptCount != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attemptCount)
	}
}

func TestChatCompletionEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	client := testClient()
	modelCfg := config.ModelConfig{
		BaseURL:            server.URL,
		ModelName:          "test",
		RateLimitPerMinute: 600,
	}

	_, err := client.ChatCompletion(context.Background(), modelCfg, "test", []Message{{Role: "user", Content: "test"}})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestRateLimiterPoolReusesLimiter(t *testing.T) {
	pool := NewRateLimiterPool()

	first := pool.GetOrCreate("model-a", 60)
	second := pool.GetOrCreate("model-a", 120) // different rate keeps existing limiter
	if first != second {
		t.Error("expected the same limiter instance for the same model ID")
	}

	other := pool.GetOrCreate("model-b", 60)
	if other == first {
		t.Error("expected a distinct limiter for a different model ID")
	}
}
