// Package provider encapsulates all network interaction with the external
// generation provider. Callers receive typed errors and never drive retries
// themselves; retry policy lives inside the client.
package provider

import "time"

// GenerateOptions carries optional generation knobs. They shape the provider
// payload only and have no effect on retry behavior.
type GenerateOptions struct {
	Framework string   `json:"framework,omitempty"`
	Styling   string   `json:"styling,omitempty"`
	Features  []string `json:"features,omitempty"`
}

// GenerateResult is a successful one-shot generation: a non-empty mapping of
// relative file paths to contents, plus optional preview markup.
type GenerateResult struct {
	Files   map[string]string
	Preview string
}

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams tunes a chat completion request.
type ChatParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a non-streaming completion result.
type ChatResponse struct {
	ID           string
	Content      string
	FinishReason string
	Usage        Usage
}

// StreamEvent is one element of a streamed chat response. Exactly one of
// Fragment, Done, or Err is meaningful per event; the channel is closed after
// a Done or Err event.
type StreamEvent struct {
	Fragment string
	Done     bool
	Err      error
}

// Config holds client construction parameters.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	return c
}
