package apiclient

import (
	"log/slog"
	"net/http"
)

// Config holds configuration for the completion client.
type Config struct {
	APIKey       string       // API key, sent as a Bearer token
	BaseURL      string       // Base URL of the OpenAI-compatible API
	Model        string       // Model identifier for requests
	SystemPrompt string       // Optional persona; injected at request time, never persisted
	HTTPClient   *http.Client // Transport; owns any timeout policy
	Logger       *slog.Logger // Logger for debugging
}
