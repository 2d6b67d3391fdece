package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
)

// maxLoggedChars bounds the persisted request/response bodies.
const maxLoggedChars = 10000

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is the outcome of one model invocation. LogID is the id of
// the persisted request-log row; order rows reference it.
type ChatResult struct {
	Text      string
	TokensIn  int64
	TokensOut int64
	LogID     int64
}

// Recorder persists one request-log row and returns its id.
type Recorder interface {
	Append(ctx context.Context, entry *domain.LLMRequestLog) (int64, error)
}

// Client is a protocol-neutral chat client for one provider. It does not
// retry: prompts are not replayable in semantics, retries are the
// caller's call.
type Client struct {
	provider *domain.LLMProvider
	http     *resty.Client
	recorder Recorder
	agentID  string
	log      zerolog.Logger
}

// NewClient creates a chat client for a provider. recorder may be nil
// when no audit trail is wanted.
func NewClient(provider *domain.LLMProvider, recorder Recorder, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		provider: provider,
		http:     resty.New().SetTimeout(timeout),
		recorder: recorder,
		log:      log.With().Str("component", "llm_client").Str("provider", provider.Name).Logger(),
	}
}

// SetAgentID tags subsequent invocations with the agent on whose behalf
// they run.
func (c *Client) SetAgentID(agentID string) {
	c.agentID = agentID
}

// Chat sends the messages and returns the model's text. One request-log
// row is appended per invocation, success or failure, with bodies
// truncated to 10,000 characters.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResult, error) {
	requestContent := renderRequestContent(messages)
	start := time.Now()

	var text string
	var tokensIn, tokensOut int64
	var err error

	switch c.provider.Protocol {
	case domain.ProtocolOpenAI:
		text, tokensIn, tokensOut, err = c.chatOpenAI(ctx, model, messages)
	case domain.ProtocolAnthropic:
		text, tokensIn, tokensOut, err = c.chatAnthropic(ctx, model, messages)
	case domain.ProtocolGemini:
		text, tokensIn, tokensOut, err = c.chatGemini(ctx, model, messages)
	default:
		err = fmt.Errorf("unsupported protocol %q", c.provider.Protocol)
	}

	duration := time.Since(start).Milliseconds()

	entry := &domain.LLMRequestLog{
		ProviderID:      c.provider.ProviderID,
		ModelName:       model,
		AgentID:         c.agentID,
		RequestContent:  truncate(requestContent, maxLoggedChars),
		ResponseContent: truncate(text, maxLoggedChars),
		DurationMs:      duration,
		Status:          "success",
		TokensIn:        tokensIn,
		TokensOut:       tokensOut,
	}
	if err != nil {
		entry.Status = "error"
		entry.ErrorMessage = err.Error()
	}

	var logID int64
	if c.recorder != nil {
		id, appendErr := c.recorder.Append(ctx, entry)
		if appendErr != nil {
			c.log.Warn().Err(appendErr).Msg("llm request log append failed")
		} else {
			logID = id
		}
	}

	if err != nil {
		c.log.Error().Err(err).Str("model", model).Int64("duration_ms", duration).Msg("llm chat failed")
		return &ChatResult{LogID: logID}, err
	}

	c.log.Debug().
		Str("model", model).
		Int64("duration_ms", duration).
		Int64("tokens_in", tokensIn).
		Int64("tokens_out", tokensOut).
		Msg("llm chat complete")

	return &ChatResult{Text: text, TokensIn: tokensIn, TokensOut: tokensOut, LogID: logID}, nil
}

func (c *Client) chatOpenAI(ctx context.Context, model string, messages []Message) (string, int64, int64, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.provider.APIKey).
		SetBody(map[string]any{"model": model, "messages": messages}).
		SetResult(&result).
		Post(apiPath(c.provider.APIURL, "/chat/completions"))
	if err != nil {
		return "", 0, 0, fmt.Errorf("openai request failed: %w", err)
	}
	if resp.IsError() {
		return "", 0, 0, fmt.Errorf("openai api error: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("openai response has no choices")
	}
	return result.Choices[0].Message.Content, result.Usage.PromptTokens, result.Usage.CompletionTokens, nil
}

func (c *Client) chatAnthropic(ctx context.Context, model string, messages []Message) (string, int64, int64, error) {
	var system string
	chat := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		chat = append(chat, m)
	}

	body := map[string]any{
		"model":      model,
		"max_tokens": 4096,
		"messages":   chat,
	}
	if system != "" {
		body["system"] = system
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.provider.APIKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(body).
		SetResult(&result).
		Post(apiPath(c.provider.APIURL, "/v1/messages"))
	if err != nil {
		return "", 0, 0, fmt.Errorf("anthropic request failed: %w", err)
	}
	if resp.IsError() {
		return "", 0, 0, fmt.Errorf("anthropic api error: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Content) == 0 {
		return "", 0, 0, fmt.Errorf("anthropic response has no content")
	}
	return result.Content[0].Text, result.Usage.InputTokens, result.Usage.OutputTokens, nil
}

func (c *Client) chatGemini(ctx context.Context, model string, messages []Message) (string, int64, int64, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}

	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []part `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.provider.APIKey).
		SetBody(map[string]any{"contents": contents}).
		SetResult(&result).
		Post(apiPath(c.provider.APIURL, "/v1beta/models/"+model+":generateContent"))
	if err != nil {
		return "", 0, 0, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.IsError() {
		return "", 0, 0, fmt.Errorf("gemini api error: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", 0, 0, fmt.Errorf("gemini response has no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text,
		result.UsageMetadata.PromptTokenCount,
		result.UsageMetadata.CandidatesTokenCount, nil
}

func apiPath(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func renderRequestContent(messages []Message) string {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Sprintf("%v", messages)
	}
	return string(raw)
}

// truncate keeps the first n characters. The bound counts runes, so
// multi-byte content keeps the full window.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
