package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/simeneide/djuplet/internal/config"
)

// StreamDelta represents the delta content in a streaming response chunk
type StreamDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"` // For reasoning models
}

// StreamChoice represents a choice in a streaming response chunk
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamResponse represents a single chunk in the streaming response
type StreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// ChatCompletionStreaming sends a chat completion request with streaming
// enabled and accumulates the chunks into a regular response. Streaming is
// required for reasoning models to expose the reasoning_content field.
func (c *Client) ChatCompletionStreaming(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	messages []Message,
) (*ChatCompletionResponse, error) {
	ctx, cancel := c.withModelTimeout(ctx, modelCfg)
	defer cancel()

	if err := c.waitForRateLimiter(ctx, modelCfg); err != nil {
		return nil, err
	}

	req := ChatCompletionRequest{
		Model:       modelCfg.ModelName,
		Messages:    messages,
		Temperature: modelCfg.Temperature,
		TopP:        modelCfg.TopP,
		MaxTokens:   modelCfg.MaxOutputTokens,
		N:           1,
		Stream:      true,
	}

	return c.withRetries(ctx, modelCfg, func() (*ChatCompletionResponse, error) {
		return c.doStreamingRequest(ctx, modelCfg.BaseURL, apiKey, req)
	})
}

func (c *Client) doStreamingRequest(
	ctx context.Context,
	baseURL string,
	apiKey string,
	req ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.send(ctx, baseURL, apiKey, buf.Bytes(), true)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, errorFromResponse(httpResp.StatusCode, bodyBytes)
	}

	// Accumulate the streamed chunks
	var responseContent strings.Builder
	var reasoningContent strings.Builder
	var responseID string
	var responseModel string
	var responseCreated int64
	var finishReason string

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		// SSE format: "data: {...}"
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			break
		}

		var chunk StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("Failed to parse stream chunk", "error", err, "data", data)
			continue
		}

		// Metadata comes from the first chunk
		if responseID == "" {
			responseID = chunk.ID
			responseModel = chunk.Model
			responseCreated = chunk.Created
		}

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				responseContent.WriteString(delta.Content)
			}
			if delta.ReasoningContent != "" {
				reasoningContent.WriteString(delta.ReasoningContent)
			}
			if chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason != "" {
				finishReason = *chunk.Choices[0].FinishReason
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &APIError{
			Message:    fmt.Sprintf("stream reading error: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}

	resp := &ChatCompletionResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: responseCreated,
		Model:   responseModel,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:             "assistant",
					Content:          responseContent.String(),
					ReasoningContent: reasoningContent.String(),
				},
				FinishReason: finishReason,
			},
		},
		// Token counts are not available in streaming mode
	}

	if reasoningContent.Len() > 0 {
		c.logger.Debug("Reasoning content detected",
			"model", responseModel,
			"reasoning_length", reasoningContent.Len(),
			"content_length", responseContent.Len())
	}

	return resp, nil
}
