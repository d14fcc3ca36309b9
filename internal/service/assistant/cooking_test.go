package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

// stubProvider records every prompt it receives and returns a canned answer.
type stubProvider struct {
	answer string
	err    error
	calls  [][]*schema.Message
}

func (p *stubProvider) Generate(_ context.Context, messages []*schema.Message) (string, error) {
	p.calls = append(p.calls, messages)
	if p.err != nil {
		return "", p.err
	}
	return p.answer, nil
}

func countTurns(t *testing.T, svc *Service) int {
	t.Helper()
	var n int
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		t.Fatalf("count turns: %v", err)
	}
	return n
}

func countConversations(t *testing.T, svc *Service) int {
	t.Helper()
	var n int
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	return n
}

func TestAskRejectsEmptyQuestionBeforeProviderCall(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "unused"}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "hana")

	for _, question := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Ask(context.Background(), userID, question, 0, FormatText); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("Ask(%q): expected ErrEmptyQuestion, got %v", question, err)
		}
	}
	if len(provider.calls) != 0 {
		t.Fatalf("provider called %d times for empty questions", len(provider.calls))
	}
	if countConversations(t, svc) != 0 {
		t.Fatal("conversation persisted for empty question")
	}
}

func TestAskRejectsUnknownFormat(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "unused"}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "iris")

	if _, err := svc.Ask(context.Background(), userID, "hello", 0, AnswerFormat("poem")); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if len(provider.calls) != 0 {
		t.Fatal("provider called for invalid format")
	}
}

func TestAskCreatesConversationWithDerivedTitle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "Start by bringing water to a boil."}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "jack")

	question := "How do I boil an egg and also discuss proper timing"
	res, err := svc.Ask(context.Background(), userID, question, 0, FormatText)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Conversation == nil || res.Conversation.ID == 0 {
		t.Fatal("expected a new conversation")
	}
	if res.Conversation.Title != "How do I boil an..." {
		t.Fatalf("title = %q", res.Conversation.Title)
	}
	if res.Answer != provider.answer {
		t.Fatalf("answer = %q", res.Answer)
	}
	if res.Recipe != nil {
		t.Fatal("text format must not return a recipe")
	}
	if res.Turn == nil || res.Turn.ConversationID != res.Conversation.ID {
		t.Fatalf("turn not linked to conversation: %+v", res.Turn)
	}

	// The first prompt carries only the system message and the question.
	if len(provider.calls) != 1 {
		t.Fatalf("provider calls = %d", len(provider.calls))
	}
	msgs := provider.calls[0]
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("unexpected prompt shape: %+v", msgs)
	}
	if msgs[1].Content != question {
		t.Fatalf("question content = %q", msgs[1].Content)
	}
}

func TestAskShortQuestionKeepsFullTitle(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", &stubProvider{answer: "Hello! What shall we cook today?"})
	userID := newTestUser(t, svc, "kate")

	res, err := svc.Ask(context.Background(), userID, "Hi", 0, FormatText)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Conversation.Title != "Hi" {
		t.Fatalf("title = %q", res.Conversation.Title)
	}
}

func TestAskReplaysHistoryOnFollowUp(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "Simmer for ten minutes."}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "liam")

	first, err := svc.Ask(context.Background(), userID, "How do I make stock?", 0, FormatText)
	if err != nil {
		t.Fatalf("first ask: %v", err)
	}
	if _, err := svc.Ask(context.Background(), userID, "How long should it simmer?", first.Conversation.ID, FormatText); err != nil {
		t.Fatalf("follow-up ask: %v", err)
	}

	if len(provider.calls) != 2 {
		t.Fatalf("provider calls = %d", len(provider.calls))
	}
	// system + prior question + prior answer + new question.
	followUp := provider.calls[1]
	if len(followUp) != 4 {
		t.Fatalf("follow-up prompt length = %d", len(followUp))
	}
	if followUp[1].Content != "How do I make stock?" || followUp[1].Role != schema.User {
		t.Fatalf("history question wrong: %+v", followUp[1])
	}
	if followUp[2].Content != first.Answer || followUp[2].Role != schema.Assistant {
		t.Fatalf("history answer wrong: %+v", followUp[2])
	}

	turns, err := svc.ListTurns(context.Background(), first.Conversation.ID, userID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(turns))
	}
}

func TestAskRecipeFormatParsesStructuredAnswer(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: `{
		"title": "Simple Omelette",
		"description": "A quick breakfast.",
		"nutrition": {"calories": "220 kcal", "protein": "14 g", "fat": "17 g"},
		"servings": 1,
		"time": {"prep": "2 min", "cook": "5 min", "total": "7 min"},
		"ingredients": [{"item": "eggs", "quantity": "2"}, {"item": "butter", "quantity": "1 tbsp"}],
		"steps": ["Whisk the eggs.", "Cook in butter over medium heat."]
	}`}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "mona")

	res, err := svc.Ask(context.Background(), userID, "Give me an omelette recipe", 0, FormatRecipe)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Recipe == nil || res.Recipe.Title != "Simple Omelette" {
		t.Fatalf("recipe = %+v", res.Recipe)
	}
	if len(res.Recipe.Ingredients) != 2 || len(res.Recipe.Steps) != 2 {
		t.Fatalf("recipe contents wrong: %+v", res.Recipe)
	}
	if !strings.Contains(provider.calls[0][0].Content, "JSON") {
		t.Fatal("recipe format must switch to the structured system prompt")
	}
}

func TestAskRecipeFormatRejectsUnusableAnswer(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "Sure! Here is a recipe: ..."}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "nina")

	before := countTurns(t, svc)
	_, err := svc.Ask(context.Background(), userID, "Give me a recipe", 0, FormatRecipe)
	if !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	if countTurns(t, svc) != before {
		t.Fatal("unusable answer must not be persisted")
	}
	if countConversations(t, svc) != 0 {
		t.Fatal("no conversation may be created for a rejected answer")
	}
}

func TestAskProviderFailureLeavesStoreUntouched(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{err: errors.New("upstream timeout")}
	svc := NewService(db, "sqlite3", provider)
	userID := newTestUser(t, svc, "omar")

	_, err := svc.Ask(context.Background(), userID, "How do I sear a steak?", 0, FormatText)
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if countConversations(t, svc) != 0 || countTurns(t, svc) != 0 {
		t.Fatal("failed provider call must persist nothing")
	}
}

func TestAskForeignConversationNotFound(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	provider := &stubProvider{answer: "ok"}
	svc := NewService(db, "sqlite3", provider)
	owner := newTestUser(t, svc, "paula")
	other := newTestUser(t, svc, "quinn")

	first, err := svc.Ask(context.Background(), owner, "hello", 0, FormatText)
	if err != nil {
		t.Fatalf("owner ask: %v", err)
	}

	_, err = svc.Ask(context.Background(), other, "hijack", first.Conversation.ID, FormatText)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign conversation, got %v", err)
	}
	// The ownership probe fails before any provider call for the intruder.
	if len(provider.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.calls))
	}
}

func TestAskSurvivesCancelledClientContext(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", &stubProvider{answer: "done"})
	userID := newTestUser(t, svc, "rosa")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.Ask(ctx, userID, "Am I still served?", 0, FormatText)
	if err != nil {
		t.Fatalf("Ask with cancelled context: %v", err)
	}
	if res.Turn == nil {
		t.Fatal("turn must be persisted despite client cancellation")
	}
}
