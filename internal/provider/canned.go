package provider

import (
	"context"
	"fmt"
	"strings"
)

// Canned is the offline client. It returns deterministic output without any
// network call so the orchestrator stays testable without a live credential.
type Canned struct{}

// NewCanned constructs the offline client.
func NewCanned() *Canned {
	return &Canned{}
}

// Generate returns a fixed single-page scaffold derived from the prompt.
func (c *Canned) Generate(_ context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	title := strings.TrimSpace(prompt)
	if len(title) > 60 {
		title = title[:60]
	}
	framework := opts.Framework
	if framework == "" {
		framework = "static"
	}
	files := map[string]string{
		"index.html": fmt.Sprintf("<!doctype html>\n<html>\n<head><title>%s</title></head>\n<body>\n<h1>%s</h1>\n<p>Generated offline (%s).</p>\n</body>\n</html>\n", title, title, framework),
		"styles.css": "body { font-family: sans-serif; margin: 2rem; }\n",
	}
	return &GenerateResult{
		Files:   files,
		Preview: fmt.Sprintf("<h1>%s</h1>", title),
	}, nil
}

// ChatComplete echoes a canned assistant reply.
func (c *Canned) ChatComplete(_ context.Context, messages []Message, _ ChatParams) (*ChatResponse, error) {
	return &ChatResponse{
		ID:           "canned-completion",
		Content:      cannedReply(messages),
		FinishReason: "stop",
	}, nil
}

// ChatStream emits the canned reply word by word, then a done event.
func (c *Canned) ChatStream(ctx context.Context, messages []Message, _ ChatParams) (<-chan StreamEvent, error) {
	reply := cannedReply(messages)
	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		words := strings.SplitAfter(reply, " ")
		for _, word := range words {
			select {
			case events <- StreamEvent{Fragment: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case events <- StreamEvent{Done: true}:
		case <-ctx.Done():
		}
	}()
	return events, nil
}

func cannedReply(messages []Message) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I am running in offline mode."
	}
	return fmt.Sprintf("Offline mode: I received %q but cannot reach the model right now.", last)
}

var _ Client = (*Canned)(nil)
