package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string, maxRetries int) (*HTTPClient, *[]time.Duration) {
	t.Helper()
	client := NewHTTPClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Timeout:        2 * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Second,
	}, nil)
	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return client, &sleeps
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"files":{"index.html":"<html/>"},"preview":"<h1>ok</h1>"}}`))
	}))
	defer srv.Close()

	client, sleeps := testClient(t, srv.URL, 3)
	result, err := client.Generate(context.Background(), "landing page", GenerateOptions{})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"index.html": "<html/>"}, result.Files)
	require.Equal(t, "<h1>ok</h1>", result.Preview)

	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, sleeps := testClient(t, srv.URL, 3)
	_, err := client.Generate(context.Background(), "landing page", GenerateOptions{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.False(t, apiErr.Retryable())
	require.True(t, IsRejected(err))

	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, *sleeps)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, sleeps := testClient(t, srv.URL, 2)
	_, err := client.Generate(context.Background(), "landing page", GenerateOptions{})
	require.Error(t, err)
	require.True(t, IsRetryable(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)

	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestGenerateTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPClient(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Timeout:        50 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	}, nil)
	client.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := client.Generate(context.Background(), "landing page", GenerateOptions{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusRequestTimeout, apiErr.StatusCode)
	require.True(t, apiErr.Retryable())
}

func TestGenerateProviderReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"prompt blocked"}`))
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL, 3)
	_, err := client.Generate(context.Background(), "landing page", GenerateOptions{})
	require.Error(t, err)
	require.True(t, IsRejected(err))
	require.Contains(t, err.Error(), "prompt blocked")
}

func TestChatCompleteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL, 3)
	resp, err := client.ChatComplete(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatParams{Model: "loom-chat-1"})
	require.NoError(t, err)
	require.Equal(t, "cmpl-1", resp.ID)
	require.Equal(t, "hello", resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestChatStreamDeliversFragmentsAndDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL, 3)
	events, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatParams{Model: "loom-chat-1"})
	require.NoError(t, err)

	var text string
	var done bool
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Done {
			done = true
			continue
		}
		text += ev.Fragment
	}
	require.True(t, done)
	require.Equal(t, "Hello", text)
}

func TestChatStreamRejectedBeforeOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, sleeps := testClient(t, srv.URL, 3)
	_, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatParams{})
	require.Error(t, err)
	require.True(t, IsRejected(err))
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, *sleeps)
}

func TestCannedClientOffline(t *testing.T) {
	client := New(Config{}, nil)
	_, ok := client.(*Canned)
	require.True(t, ok)

	result, err := client.Generate(context.Background(), "todo app", GenerateOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Files)

	events, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatParams{})
	require.NoError(t, err)
	var done bool
	var text string
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Done {
			done = true
			continue
		}
		text += ev.Fragment
	}
	require.True(t, done)
	require.NotEmpty(t, text)
}
