package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"cookwithme/internal/models"
)

// BuildMessages reconstructs the ordered prompt for the provider: the system
// instruction, the replayed history in storage order, then the new question.
// A historical turn contributes only its non-empty sides, so a blank question
// or answer never injects an empty message. Pure function; the replay order
// is what gives the model conversational memory.
func BuildMessages(history []*models.Turn, question, systemPrompt string) []*schema.Message {
	messages := make([]*schema.Message, 0, 2*len(history)+2)
	messages = append(messages, &schema.Message{
		Role:    schema.System,
		Content: systemPrompt,
	})
	for _, turn := range history {
		if turn == nil {
			continue
		}
		if q := strings.TrimSpace(turn.Question); q != "" {
			messages = append(messages, &schema.Message{
				Role:    schema.User,
				Content: q,
			})
		}
		if a := strings.TrimSpace(turn.Answer); a != "" {
			messages = append(messages, &schema.Message{
				Role:    schema.Assistant,
				Content: a,
			})
		}
	}
	messages = append(messages, &schema.Message{
		Role:    schema.User,
		Content: strings.TrimSpace(question),
	})
	return messages
}
