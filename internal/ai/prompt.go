package ai

import (
	"fmt"
	"strings"
)

const ExtractionPrompt = "Extract all text from this invoice image exactly as it appears. Do not summarize."

const answerSystemPrompt = "You answer questions about a single invoice. Use only the invoice text you are given."

func BuildAnswerPrompt(req AnswerRequest) string {
	var b strings.Builder
	b.WriteString("Context: The following is the text extracted from an invoice:\n")
	b.WriteString(`"""`)
	b.WriteString(req.Context)
	b.WriteString(`"""`)
	b.WriteString("\n\n")

	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User Question: %s\n\n", req.Question)
	b.WriteString("Answer the question based strictly on the context provided above.")
	return b.String()
}
