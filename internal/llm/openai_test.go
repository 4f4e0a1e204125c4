package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClientGenerateContent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer key" {
				t.Errorf("Expected bearer key, got '%s'", r.Header.Get("Authorization"))
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode request: %v", err)
			}
			w.Write([]byte(`{"model":"gpt-4o-2024","choices":[{"message":{"content":"# Jour 1"}}],
				"usage":{"prompt_tokens":12,"completion_tokens":30,"total_tokens":42}}`))
		}))
		defer srv.Close()

		c := newChatClient("openai", srv.URL, "key", "gpt-4o")
		resp, err := c.GenerateContent(context.Background(), Request{
			System:      "sys",
			Prompt:      "hello",
			MaxTokens:   4000,
			Temperature: 0.7,
		})
		if err != nil {
			t.Fatalf("GenerateContent failed: %v", err)
		}
		if resp.Content != "# Jour 1" {
			t.Errorf("Expected content '# Jour 1', got '%s'", resp.Content)
		}
		if resp.Usage.TotalTokens != 42 || resp.Usage.Model != "gpt-4o-2024" {
			t.Errorf("Unexpected usage: %+v", resp.Usage)
		}
		if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
			t.Errorf("Unexpected messages: %+v", got.Messages)
		}
		if got.MaxTokens != 4000 {
			t.Errorf("Expected max_tokens 4000, got %d", got.MaxTokens)
		}
	})

	t.Run("NonSuccessStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`rate limited`))
		}))
		defer srv.Close()

		c := newChatClient("groq", srv.URL, "key", groqModel)
		_, err := c.GenerateContent(context.Background(), Request{Prompt: "hello"})

		var perr *ProviderError
		if !errors.As(err, &perr) {
			t.Fatalf("Expected ProviderError, got %v", err)
		}
		if perr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("Expected status 429, got %d", perr.StatusCode)
		}
		if perr.Error() != "groq api error: status=429 body=rate limited" {
			t.Errorf("Unexpected message: %s", perr.Error())
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c := newChatClient("openai", srv.URL, "key", "gpt-4o")
		_, err := c.GenerateContent(context.Background(), Request{Prompt: "hello"})

		var perr *ProviderError
		if !errors.As(err, &perr) {
			t.Fatalf("Expected ProviderError, got %v", err)
		}
		if perr.Message != "no content generated" {
			t.Errorf("Unexpected message: %s", perr.Message)
		}
	})
}
