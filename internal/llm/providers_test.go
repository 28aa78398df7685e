package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

var feedbackSchema = &Schema{
	Name: "test-feedback",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quality": map[string]any{"type": "number"},
		},
		"required":             []string{"quality"},
		"additionalProperties": false,
	},
}

func jsonHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newAnthropic(t *testing.T, h http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewAnthropicProvider(
		AnthropicConfig{APIKey: "test-key", Model: "claude-haiku"},
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

func anthropicMessage(text, stop string) map[string]any {
	return map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 40, "output_tokens": 12},
	}
}

func TestAnthropicProvider(t *testing.T) {
	p := newAnthropic(t, jsonHandler(http.StatusOK, anthropicMessage(`{"quality":0.8}`, "end_turn")))

	if p.ModelID() != "claude-haiku-4-5-20251001" {
		t.Fatalf("alias not resolved: %q", p.ModelID())
	}
	resp, err := p.Generate(context.Background(), Request{
		System:    "You review answers.",
		Messages:  []Message{{Role: RoleUser, Content: "Review this."}},
		Schema:    feedbackSchema,
		MaxTokens: 128,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 52 {
		t.Errorf("TotalTokens = %d, want 52", resp.Usage.TotalTokens)
	}
	if resp.StopReason != StopEnd {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	var out struct{ Quality float64 }
	if err := resp.Decode(&out); err != nil || out.Quality != 0.8 {
		t.Errorf("Decode = %+v, %v", out, err)
	}
}

func TestAnthropicProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "rate limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "7")
				jsonHandler(http.StatusTooManyRequests, map[string]any{
					"type":  "error",
					"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
				})(w, r)
			},
			check: func(err error) bool {
				var rl *ErrRateLimit
				return errors.As(err, &rl) && rl.RetryAfter.Seconds() == 7
			},
		},
		{
			name: "server error",
			handler: jsonHandler(http.StatusInternalServerError, map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "api_error", "message": "boom"},
			}),
			check: func(err error) bool {
				var down *ErrProviderUnavailable
				return errors.As(err, &down)
			},
		},
		{
			name: "bad request",
			handler: jsonHandler(http.StatusBadRequest, map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "invalid_request_error", "message": "nope"},
			}),
			check: func(err error) bool {
				var rej *ErrRequest
				return errors.As(err, &rej) && !IsTransient(err)
			},
		},
		{
			name:    "schema mismatch",
			handler: jsonHandler(http.StatusOK, anthropicMessage(`{"quality":"high"}`, "end_turn")),
			check: func(err error) bool {
				var inv *ErrInvalidResponse
				return errors.As(err, &inv)
			},
		},
		{
			name:    "truncated",
			handler: jsonHandler(http.StatusOK, anthropicMessage(`{"qual`, "max_tokens")),
			check: func(err error) bool {
				var mt *ErrMaxTokensExceeded
				return errors.As(err, &mt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newAnthropic(t, tt.handler)
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "x"}},
				Schema:    feedbackSchema,
				MaxTokens: 16,
			})
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOpenAIProvider(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		jsonHandler(http.StatusOK, map[string]any{
			"id":      "c1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": `{"quality":0.5}`}}},
			"usage":   map[string]any{"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13},
		})(w, r)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-mini", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Generate(context.Background(), Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Schema:   feedbackSchema,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 13 || resp.Model != "gpt-4o-mini" {
		t.Errorf("resp = %+v", resp)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("sent %d messages, want system + user", len(msgs))
	}
	if gotBody["response_format"] == nil {
		t.Error("schema was not sent as response_format")
	}
}

func TestOpenAIProviderServerError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusServiceUnavailable, map[string]any{
		"error": map[string]any{"message": "overloaded", "type": "server_error"},
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var down *ErrProviderUnavailable
	if !errors.As(err, &down) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestOpenRouterProvider(t *testing.T) {
	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or", Model: "anthropic/claude-3-haiku"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != ProviderOpenRouter || p.ModelID() != "anthropic/claude-3-haiku" {
		t.Errorf("got %s/%s", p.Name(), p.ModelID())
	}
	if _, err := NewOpenRouterProvider(OpenRouterConfig{Model: "x"}); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestGeminiProvider(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": `{"quality":1}`}}},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 5, "candidatesTokenCount": 3, "totalTokenCount": 8},
		"modelVersion":  "gemini-2.5-flash",
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-flash", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Schema:   feedbackSchema,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 8 || resp.Model != "gemini-2.5-flash" {
		t.Errorf("resp = %+v", resp)
	}
}
