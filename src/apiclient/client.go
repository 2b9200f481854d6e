// Package apiclient implements the chat completion client. It performs
// exactly one HTTP POST per completion and never raises outward: every
// outcome is expressed as a CompletionResult.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ashtin/convo/src/chatsdk"
)

const completionsPath = "/chat/completions"

// Distinguished result messages. These are part of the client's contract and
// are matched by callers.
const (
	MsgNoAPIKey     = "API key not configured."
	MsgNoMessages   = "No messages to send."
	MsgNoBody       = "No response body received"
	MsgCancelled    = "Request cancelled"
	MsgUnknownError = "An unknown error occurred"
)

// CompletionResult is the single outcome type for a completion. Error being
// non-empty implies Content is empty: accumulated fragments are discarded
// when a failure is detected, even if some were already delivered through the
// delta callback.
type CompletionResult struct {
	Content      string `json:"content"`
	Error        string `json:"error,omitempty"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Failed reports whether the completion ended in any error class.
func (r CompletionResult) Failed() bool {
	return r.Error != ""
}

func failure(message string) CompletionResult {
	return CompletionResult{Error: message}
}

// Client is the chat completion API client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new completion client.
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "completion_client")

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// StreamCompletion validates the request, performs one POST to
// <baseURL>/chat/completions with stream enabled, and decodes the response
// body in a single pass. onDelta, when non-nil, is invoked synchronously for
// each text fragment in stream order, before the full response completes.
//
// Cancelling ctx mid-stream stops further reads and yields the distinguished
// MsgCancelled result. Fragments already delivered to onDelta are not
// retracted.
func (c *Client) StreamCompletion(ctx context.Context, messages []*chatsdk.Message, onDelta chatsdk.DeltaFunc) CompletionResult {
	logger := c.logger.With("method", "StreamCompletion", "model", c.config.Model)

	// Preconditions are checked before any network side effect.
	if c.config.APIKey == "" {
		logger.Warn("missing API key")
		return failure(MsgNoAPIKey)
	}
	if len(messages) == 0 {
		logger.Warn("empty message list")
		return failure(MsgNoMessages)
	}

	req := &chatsdk.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: c.withSystemPrompt(messages),
		Stream:   true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		logger.Error("failed to marshal request", "error", err)
		return failure(err.Error())
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		logger.Error("failed to create request", "error", err)
		return failure(err.Error())
	}

	logger.Debug("sending chat completion request", "messages", len(req.Messages))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure(c.classifyTransportError(ctx, err, logger))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return failure(c.handleErrorResponse(resp, logger))
	}

	if resp.Body == nil {
		logger.Error("response body missing")
		return failure(MsgNoBody)
	}

	var agg chatsdk.StreamAggregator
	content, err := chatsdk.DecodeStream(chatsdk.NewEventStream(resp.Body), onDelta, &agg)
	if err != nil {
		return failure(c.classifyTransportError(ctx, err, logger))
	}

	logger.Info("chat completion successful",
		"response_id", agg.ID,
		"finish_reason", agg.FinishReason,
		"content_length", len(content))

	return CompletionResult{
		Content:      content,
		Model:        agg.Model,
		FinishReason: agg.FinishReason,
	}
}

// withSystemPrompt prepends the configured system message. The system message
// is always the first element and is never persisted by callers.
func (c *Client) withSystemPrompt(messages []*chatsdk.Message) []*chatsdk.Message {
	if c.config.SystemPrompt == "" {
		return messages
	}
	out := make([]*chatsdk.Message, 0, len(messages)+1)
	out = append(out, &chatsdk.Message{Role: chatsdk.RoleSystem, Content: c.config.SystemPrompt})
	return append(out, messages...)
}

// newRequest creates the HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return req, nil
}

// handleErrorResponse extracts the user-facing message from a non-2xx
// response.
func (c *Client) handleErrorResponse(resp *http.Response, logger *slog.Logger) string {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		body = nil
	}

	apiErr := parseAPIError(resp.StatusCode, body, resp.Header.Get("X-Request-ID"))
	switch {
	case apiErr.IsRateLimit():
		logger.Warn("rate limited", "status_code", apiErr.StatusCode, "request_id", apiErr.RequestID)
	case apiErr.IsAuthError():
		logger.Error("authentication failed", "status_code", apiErr.StatusCode, "request_id", apiErr.RequestID)
	default:
		logger.Error("received error response", "status_code", apiErr.StatusCode, "error", apiErr)
	}

	return apiErr.ResultMessage()
}

// classifyTransportError maps a transport-level failure to its result
// message. Cancellation via the caller's context is a distinct outcome, not
// a generic transport error.
func (c *Client) classifyTransportError(ctx context.Context, err error, logger *slog.Logger) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		logger.Info("request cancelled")
		return MsgCancelled
	}

	if err == nil {
		return MsgUnknownError
	}

	// http.Client wraps failures in *url.Error; report the underlying
	// failure's message.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}

	logger.Error("transport failure", "error", err)
	return err.Error()
}
