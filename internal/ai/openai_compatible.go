package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// StatusError carries a non-2xx reply from the completions endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm response status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// OpenAICompatibleClient talks to any /chat/completions endpoint that accepts
// image_url content parts.
type OpenAICompatibleClient struct {
	cfg        ChatConfig
	httpClient *http.Client
}

func NewOpenAICompatibleClient(cfg ChatConfig, httpClient *http.Client) *OpenAICompatibleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &OpenAICompatibleClient{cfg: cfg, httpClient: httpClient}
}

func (c *OpenAICompatibleClient) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	messages := []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: ExtractionPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}}
	return c.complete(ctx, messages)
}

func (c *OpenAICompatibleClient) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: BuildAnswerPrompt(req)},
	}
	answer, err := c.complete(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (c *OpenAICompatibleClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	bodyBytes, err := json.Marshal(map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
		"stream":   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices: %w", ErrEmptyResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}
