package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
	SummaryMaxTokens int
	AnswerMaxTokens  int
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	baseURL          string
	apiKey           string
	model            string
	temperature      float64
	summaryMaxTokens int
	answerMaxTokens  int
	client           *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	summaryMaxTokens := cfg.SummaryMaxTokens
	if summaryMaxTokens <= 0 {
		summaryMaxTokens = 400
	}
	answerMaxTokens := cfg.AnswerMaxTokens
	if answerMaxTokens <= 0 {
		answerMaxTokens = 300
	}
	return &OpenAIClient{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:           strings.TrimSpace(cfg.APIKey),
		model:            model,
		temperature:      cfg.Temperature,
		summaryMaxTokens: summaryMaxTokens,
		answerMaxTokens:  answerMaxTokens,
		client:           &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, schema string) (string, error) {
	return c.complete(ctx, schemaSummarySystemPrompt, schemaSummaryUserPrompt(schema), c.summaryMaxTokens)
}

func (c *OpenAIClient) GenerateSQL(ctx context.Context, question, schemaSummary string) (string, error) {
	text, err := c.complete(ctx, sqlGenerationSystemPrompt, sqlGenerationUserPrompt(question, schemaSummary), c.answerMaxTokens)
	if err != nil {
		return "", err
	}
	return StripMarkdownFences(text), nil
}

func (c *OpenAIClient) Answer(ctx context.Context, question, result string) (string, error) {
	return c.complete(ctx, finalAnswerSystemPrompt, finalAnswerUserPrompt(question, result), c.answerMaxTokens)
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": c.temperature,
		"max_tokens":  maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}

// StripMarkdownFences removes a surrounding ```sql / ``` wrapper when the
// model ignores the no-markdown instruction.
func StripMarkdownFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
