package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicfin/atrader/internal/domain"
)

type fakeRecorder struct {
	entries []*domain.LLMRequestLog
	nextID  int64
}

func (f *fakeRecorder) Append(_ context.Context, entry *domain.LLMRequestLog) (int64, error) {
	f.nextID++
	f.entries = append(f.entries, entry)
	return f.nextID, nil
}

func provider(protocol domain.LLMProtocol, url string) *domain.LLMProvider {
	return &domain.LLMProvider{
		ProviderID: "p1",
		Name:       "test",
		Protocol:   protocol,
		APIURL:     url,
		APIKey:     "sk-test",
	}
}

func TestChatOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `[{"decision":"hold"}]`}},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 8},
		})
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := NewClient(provider(domain.ProtocolOpenAI, srv.URL), rec, 5*time.Second, zerolog.Nop())
	c.SetAgentID("a1")

	res, err := c.Chat(context.Background(), "gpt-test", []Message{{Role: "user", Content: "决策"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"decision":"hold"}]`, res.Text)
	assert.Equal(t, int64(120), res.TokensIn)
	assert.Equal(t, int64(8), res.TokensOut)
	assert.Equal(t, int64(1), res.LogID)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, "a1", entry.AgentID)
	assert.Equal(t, "success", entry.Status)
	assert.Contains(t, entry.RequestContent, "决策")
}

func TestChatAnthropicSplitsSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))

		var body struct {
			System   string    `json:"system"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "你是交易员", body.System)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"text": "ok"}},
			"usage":   map[string]any{"input_tokens": 10, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	c := NewClient(provider(domain.ProtocolAnthropic, srv.URL), nil, 5*time.Second, zerolog.Nop())
	res, err := c.Chat(context.Background(), "claude-test", []Message{
		{Role: "system", Content: "你是交易员"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
}

func TestChatGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "sk-test", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "answer"}}}},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 5, "candidatesTokenCount": 1},
		})
	}))
	defer srv.Close()

	c := NewClient(provider(domain.ProtocolGemini, srv.URL), nil, 5*time.Second, zerolog.Nop())
	res, err := c.Chat(context.Background(), "gemini-test", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Text)
	assert.Equal(t, int64(5), res.TokensIn)
}

func TestChatErrorStillLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := NewClient(provider(domain.ProtocolOpenAI, srv.URL), rec, 5*time.Second, zerolog.Nop())

	res, err := c.Chat(context.Background(), "gpt-test", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, int64(1), res.LogID, "failed calls still append a log row")

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "error", rec.entries[0].Status)
	assert.NotEmpty(t, rec.entries[0].ErrorMessage)
}

func TestLoggedContentTruncated(t *testing.T) {
	long := strings.Repeat("x", 25000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": long}},
			},
		})
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := NewClient(provider(domain.ProtocolOpenAI, srv.URL), rec, 5*time.Second, zerolog.Nop())

	res, err := c.Chat(context.Background(), "gpt-test", []Message{{Role: "user", Content: long}})
	require.NoError(t, err)
	// The full body is parsed before truncation.
	assert.Len(t, res.Text, 25000)

	require.Len(t, rec.entries, 1)
	assert.LessOrEqual(t, len(rec.entries[0].RequestContent), maxLoggedChars)
	assert.Len(t, rec.entries[0].ResponseContent, maxLoggedChars)
}

func TestTruncateCountsCharacters(t *testing.T) {
	// The bound is characters, not bytes: a 10,000-character CJK string
	// (30,000 bytes) is kept whole.
	exact := strings.Repeat("中", maxLoggedChars)
	assert.Equal(t, exact, truncate(exact, maxLoggedChars))

	long := strings.Repeat("中", maxLoggedChars+5000)
	out := truncate(long, maxLoggedChars)
	assert.Equal(t, maxLoggedChars, utf8.RuneCountInString(out))
	for _, r := range out {
		assert.Equal(t, '中', r)
	}
}
