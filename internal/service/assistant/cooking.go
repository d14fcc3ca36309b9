package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"cookwithme/internal/models"
	"cookwithme/internal/service/ai"
)

// AnswerFormat selects the output contract the provider is held to.
type AnswerFormat string

const (
	FormatText   AnswerFormat = "text"
	FormatRecipe AnswerFormat = "recipe"
)

// answerGenerator is the provider boundary; satisfied by ai.Client and by
// test doubles.
type answerGenerator interface {
	Generate(ctx context.Context, messages []*schema.Message) (string, error)
}

const systemPromptText = "You are a helpful cooking assistant. " +
	"Provide clear, concise cooking instructions. " +
	"After 2-3 steps, ask if the user wants to continue."

const systemPromptRecipe = "You are a helpful cooking assistant. " +
	"Respond with exactly one JSON object and nothing else: no markdown, no code fences, no commentary. " +
	"The object must have fields title (string), description (string), " +
	"nutrition (object with calories, protein and fat as strings with units), " +
	"servings (number), time (object with prep, cook and total as strings), " +
	"ingredients (array of objects with item and quantity as strings), " +
	"and steps (array of strings)."

const defaultConversationTitle = "New Conversation"

// askTimeout caps the provider call plus persistence for one request.
const askTimeout = 2 * time.Minute

// AskResult is the outcome of one fully persisted turn.
type AskResult struct {
	Answer       string
	Recipe       *models.Recipe
	Conversation *models.Conversation
	Turn         *models.Turn
}

// Ask runs one assistant turn for an authenticated user: resolve the target
// conversation, replay its history into a prompt, call the provider, validate
// the answer, and persist the turn. For a new thread the conversation row is
// created together with the first turn, only after the provider call
// succeeded.
func (s *Service) Ask(ctx context.Context, userID int64, question string, conversationID int64, format AnswerFormat) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatRecipe:
	default:
		return nil, ErrInvalidFormat
	}
	if s.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrProvider)
	}

	// A client disconnect must not interrupt the model call or leave a
	// half-written turn; persistence is all-or-nothing per turn.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), askTimeout)
	defer cancel()

	var (
		conv    *models.Conversation
		history []*models.Turn
	)
	if conversationID > 0 {
		var err error
		conv, err = s.GetConversation(ctx, conversationID, userID)
		if err != nil {
			return nil, err
		}
		history, err = s.ListTurns(ctx, conversationID, userID)
		if err != nil {
			return nil, err
		}
	}

	systemPrompt := systemPromptText
	if format == FormatRecipe {
		systemPrompt = systemPromptRecipe
	}
	messages := ai.BuildMessages(history, question, systemPrompt)

	answer, err := s.provider.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var recipe *models.Recipe
	if format == FormatRecipe {
		recipe, err = models.ParseRecipe(answer)
		if err != nil {
			// Reject, don't coerce; nothing is persisted.
			return nil, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
		}
	}

	var turn *models.Turn
	if conv == nil {
		conv, turn, err = s.CreateConversationWithTurn(ctx, userID, conversationTitle(question), question, answer)
	} else {
		turn, err = s.AppendTurn(ctx, conv.ID, userID, question, answer)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &AskResult{
		Answer:       answer,
		Recipe:       recipe,
		Conversation: conv,
		Turn:         turn,
	}, nil
}

const (
	titleMaxWords = 5
	titleMaxChars = 50
)

// conversationTitle derives a thread title from its opening question: the
// first five words plus an ellipsis when the question runs longer, otherwise
// the first 50 characters.
func conversationTitle(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return defaultConversationTitle
	}
	words := strings.Fields(question)
	if len(words) > titleMaxWords {
		return strings.Join(words[:titleMaxWords], " ") + "..."
	}
	if runes := []rune(question); len(runes) > titleMaxChars {
		return string(runes[:titleMaxChars])
	}
	return question
}
