package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiOracle struct {
	client *genai.Client
	model  string
}

func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiOracle{client: client, model: model}, nil
}

func (o *GeminiOracle) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	model := o.client.GenerativeModel(o.model)
	resp, err := model.GenerateContent(ctx,
		genai.Text(ExtractionPrompt),
		genai.Blob{MIMEType: mimeType, Data: data},
	)
	if err != nil {
		return "", fmt.Errorf("gemini extract text failed: %w", err)
	}
	return responseText(resp), nil
}

func (o *GeminiOracle) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	model := o.client.GenerativeModel(o.model)
	resp, err := model.GenerateContent(ctx, genai.Text(BuildAnswerPrompt(req)))
	if err != nil {
		return "", fmt.Errorf("gemini answer failed: %w", err)
	}
	answer := responseText(resp)
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (o *GeminiOracle) Close() error {
	return o.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		// Only the first usable candidate is returned.
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
