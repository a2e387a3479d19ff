package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client is the provider boundary. Two implementations exist: the live HTTP
// client and a canned offline client selected when no credential is
// configured.
type Client interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)
	ChatComplete(ctx context.Context, messages []Message, params ChatParams) (*ChatResponse, error)
	ChatStream(ctx context.Context, messages []Message, params ChatParams) (<-chan StreamEvent, error)
}

// New selects the client implementation from configuration. Without an API
// key the canned client keeps the rest of the system testable offline.
func New(cfg Config, logger *slog.Logger) Client {
	if cfg.APIKey == "" {
		if logger != nil {
			logger.Warn("no provider credential configured, using canned client")
		}
		return NewCanned()
	}
	return NewHTTPClient(cfg, logger)
}

// HTTPClient talks to the live provider with bounded retries and backoff.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is swapped in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient constructs the live client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
		sleep:      sleepCtx,
	}
}

type generateRequest struct {
	Prompt  string          `json:"prompt"`
	Options GenerateOptions `json:"options"`
}

type generateEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Files   map[string]string `json:"files"`
		Preview string            `json:"preview"`
	} `json:"data"`
	Error string `json:"error"`
}

// Generate performs a one-shot generation call.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	body, err := c.postWithRetry(ctx, "generate", "/generate", generateRequest{Prompt: prompt, Options: opts})
	if err != nil {
		return nil, err
	}
	var env generateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("provider: decode generate response: %w", err)
	}
	if !env.Success {
		return nil, &APIError{StatusCode: http.StatusUnprocessableEntity, Message: env.Error}
	}
	if len(env.Data.Files) == 0 {
		return nil, &APIError{StatusCode: http.StatusUnprocessableEntity, Message: "provider returned no files"}
	}
	return &GenerateResult{Files: env.Data.Files, Preview: env.Data.Preview}, nil
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatEnvelope struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// ChatComplete performs a non-streaming single-shot completion.
func (c *HTTPClient) ChatComplete(ctx context.Context, messages []Message, params ChatParams) (*ChatResponse, error) {
	payload := chatRequest{Messages: messages, Model: params.Model, Temperature: params.Temperature, MaxTokens: params.MaxTokens}
	body, err := c.postWithRetry(ctx, "chat", "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	var env chatEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("provider: decode chat response: %w", err)
	}
	if len(env.Choices) == 0 {
		return nil, &APIError{StatusCode: http.StatusUnprocessableEntity, Message: "provider returned no choices"}
	}
	return &ChatResponse{
		ID:           env.ID,
		Content:      env.Choices[0].Message.Content,
		FinishReason: env.Choices[0].FinishReason,
		Usage:        env.Usage,
	}, nil
}

// ChatStream opens a streamed completion. The connection attempt follows the
// same retry policy as the other calls; the stream itself is not resumable
// and a mid-stream failure surfaces as an Err event.
func (c *HTTPClient) ChatStream(ctx context.Context, messages []Message, params ChatParams) (<-chan StreamEvent, error) {
	payload := chatRequest{Messages: messages, Model: params.Model, Temperature: params.Temperature, MaxTokens: params.MaxTokens, Stream: true}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: encode chat request: %w", err)
	}

	var resp *http.Response
	var cancel context.CancelFunc
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		resp, cancel, lastErr = c.openOnce(ctx, "/chat/completions", raw)
		if lastErr == nil {
			break
		}
		if !IsRetryable(lastErr) {
			return nil, lastErr
		}
		c.logger.Warn("provider stream open failed",
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))
	}
	if lastErr != nil {
		return nil, lastErr
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		dec := newStreamDecoder(resp.Body)
		for {
			fragment, err := dec.Next()
			if err != nil {
				ev := StreamEvent{Done: true}
				if err != io.EOF {
					ev = StreamEvent{Err: fmt.Errorf("provider: stream read: %w", err)}
				}
				select {
				case events <- ev:
				case <-ctx.Done():
				}
				return
			}
			select {
			case events <- StreamEvent{Fragment: fragment}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// postWithRetry issues the request with exponential backoff. The delay before
// retry n+1 is baseDelay shifted by the 0-based index of the failed attempt.
func (c *HTTPClient) postWithRetry(ctx context.Context, op, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: encode %s request: %w", op, err)
	}
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		body, err := c.doOnce(ctx, path, raw)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		c.logger.Warn("provider call failed",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
	return nil, lastErr
}

// doOnce performs a single attempt bounded by the configured timeout and
// returns the full response body.
func (c *HTTPClient) doOnce(ctx context.Context, path string, raw []byte) ([]byte, error) {
	resp, cancel, err := c.openOnce(ctx, path, raw)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	return body, nil
}

// openOnce dispatches one attempt and validates the response status. On
// success the returned cancel func owns the attempt deadline and must be
// called once the body is consumed.
func (c *HTTPClient) openOnce(ctx context.Context, path string, raw []byte) (*http.Response, context.CancelFunc, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, classifyTransport(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Body: body, Message: string(bytes.TrimSpace(body))}
	}
	return resp, cancel, nil
}

func (c *HTTPClient) backoff(failedAttempt int) time.Duration {
	return c.cfg.RetryBaseDelay << failedAttempt
}

// classifyTransport converts transport failures into the error taxonomy.
// An attempt exceeding its deadline counts as a retryable timeout unless the
// caller itself went away.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{StatusCode: http.StatusRequestTimeout, Message: "request timed out"}
	}
	return fmt.Errorf("provider: transport: %w", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Client = (*HTTPClient)(nil)
