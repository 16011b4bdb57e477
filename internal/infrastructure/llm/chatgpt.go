package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AffineNews/internal/config"
	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// ChatGPTClient implements ports.CountryExtractor backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.CountryExtractor = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// verdict tolerates favorability sent either as a number or a quoted number.
type verdict struct {
	Country      string          `json:"country"`
	Favorability json.RawMessage `json:"favorability"`
}

// ExtractMention asks the model which foreign country the title is about.
func (c *ChatGPTClient) ExtractMention(ctx context.Context, title, sourceISO string) (domain.Mention, error) {
	if c == nil {
		return domain.Mention{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Mention{}, fmt.Errorf("chatgpt client misconfigured")
	}

	user := fmt.Sprintf("Source country: %s\nHeadline: %s", sourceISO, title)
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0,
	})
	if err != nil {
		return domain.Mention{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Mention{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Mention{}, fmt.Errorf("extract mention: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Mention{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Mention{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return domain.Mention{}, fmt.Errorf("chatgpt returned no choices")
	}

	m, err := parseVerdict(decoded.Choices[0].Message.Content)
	if err != nil {
		return domain.Mention{}, err
	}
	return domain.NormalizeMention(m, sourceISO), nil
}

func parseVerdict(content string) (domain.Mention, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return domain.Mention{}, fmt.Errorf("parse chatgpt verdict %q: %w", content, err)
	}

	fav := 0
	if raw := strings.Trim(string(v.Favorability), `" `); raw != "" && raw != "null" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Mention{}, fmt.Errorf("parse favorability %q: %w", raw, err)
		}
		fav = int(f)
	}
	return domain.Mention{TargetISO: v.Country, Favorability: fav}, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You classify news headlines. Reply with JSON {\"country\": \"<ISO alpha-3 or none>\", \"favorability\": <-1|0|1>}."
	}
	return prompt
}
