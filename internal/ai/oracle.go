package ai

import (
	"context"
	"errors"
)

var (
	ErrEmptyResponse = errors.New("oracle returned an empty response")
	ErrUnavailable   = errors.New("oracle temporarily unavailable")
)

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Answerer answers a question grounded in a document's extracted text.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

// Oracle is a provider that does both; Gemini and OpenAI-compatible
// backends implement it.
type Oracle interface {
	TextExtractor
	Answerer
}

type HistoryTurn struct {
	Role    string
	Content string
}

type AnswerRequest struct {
	Context  string
	Question string
	// History is empty unless history folding is enabled.
	History []HistoryTurn
}
