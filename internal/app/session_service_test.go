package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func TestSaveAnswerUpsertCollapses(t *testing.T) {
	ctx := context.Background()
	service, _, store := newSessionService(t)
	quiz, _ := service.GetQuiz(ctx, "DEMO0001")
	opts := quiz.Questions[0].Options

	for _, ids := range [][]int64{{opts[1].ID}, {opts[2].ID}, {opts[0].ID}} {
		err := service.SaveAnswer(ctx, "DEMO0001", "u1", domain.QuestionAnswer{
			QuestionID: quiz.Questions[0].ID, SelectedOptionIDs: ids,
		})
		if err != nil {
			t.Fatalf("save answer failed: %v", err)
		}
	}

	answers, err := store.ListAnswers(ctx, quiz.ID, "u1")
	if err != nil {
		t.Fatalf("list answers failed: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer row after resaves, got %d", len(answers))
	}
	if got := answers[0].SelectedOptionIDs; len(got) != 1 || got[0] != quiz.Questions[0].Options[0].ID {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestSaveAnswerNormalizesSelection(t *testing.T) {
	ctx := context.Background()
	service, _, store := newSessionService(t)

	quiz, _ := service.GetQuiz(ctx, "DEMO0001")
	a, b := quiz.Questions[0].Options[0].ID, quiz.Questions[0].Options[1].ID

	err := service.SaveAnswer(ctx, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID:        quiz.Questions[0].ID,
		SelectedOptionIDs: []int64{b, a, b, a},
	})
	if err != nil {
		t.Fatalf("save answer failed: %v", err)
	}

	answers, _ := store.ListAnswers(ctx, quiz.ID, "u1")
	if got := answers[0].SelectedOptionIDs; len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("expected deduplicated sorted selection [%d %d], got %v", a, b, got)
	}
}

func TestSaveAnswerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionService(t)
	quiz, _ := service.GetQuiz(ctx, "DEMO0001")

	err := service.SaveAnswer(ctx, "DEMO0001", "u1", domain.QuestionAnswer{QuestionID: 99999})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound for foreign question, got %v", err)
	}

	err = service.SaveAnswer(ctx, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[0].ID, Text: "not an option list",
	})
	if !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer for text on a choice question, got %v", err)
	}

	err = service.SaveAnswer(ctx, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, SelectedOptionIDs: []int64{1},
	})
	if !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer for selections on free text, got %v", err)
	}

	err = service.SaveAnswer(ctx, "NOPE1234", "u1", domain.QuestionAnswer{QuestionID: quiz.Questions[0].ID})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound for unknown access code, got %v", err)
	}
}

func TestFinalizeScoresAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _, store := newSessionService(t)
	quiz, _ := service.GetQuiz(ctx, "DEMO0001")

	correctID := correctOptionID(t, quiz.Questions[0])
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[0].ID, SelectedOptionIDs: []int64{correctID},
	})
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, Text: " 42 ",
	})

	first, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if first.TotalQuestions != 2 || first.CorrectAnswers != 2 {
		t.Fatalf("expected 2/2, got %d/%d", first.CorrectAnswers, first.TotalQuestions)
	}
	if first.ScorePercentage != 100 {
		t.Fatalf("expected 100%%, got %v", first.ScorePercentage)
	}

	// Later edits must not change the recorded outcome.
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, Text: "wrong",
	})

	second, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("second finalize failed: %v", err)
	}
	if second.TotalQuestions != first.TotalQuestions || second.CorrectAnswers != first.CorrectAnswers {
		t.Fatalf("finalize not idempotent: first %d/%d, second %d/%d",
			first.CorrectAnswers, first.TotalQuestions, second.CorrectAnswers, second.TotalQuestions)
	}

	answers, _ := store.ListAnswers(ctx, quiz.ID, "u1")
	for _, a := range answers {
		if a.QuestionID == quiz.Questions[0].ID && a.Correctness != domain.CorrectnessCorrect {
			t.Fatalf("expected annotated correctness on answer row, got %q", a.Correctness)
		}
	}
}

func TestFinalizeCountsUnanswered(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionService(t)
	quiz, _ := service.GetQuiz(ctx, "DEMO0001")

	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[0].ID, SelectedOptionIDs: []int64{correctOptionID(t, quiz.Questions[0])},
	})

	score, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if score.TotalQuestions != 2 || score.CorrectAnswers != 1 {
		t.Fatalf("expected 1/2 with one unanswered, got %d/%d", score.CorrectAnswers, score.TotalQuestions)
	}
}

func TestFinalizeRaceLoserReadsWinner(t *testing.T) {
	ctx := context.Background()
	quizzes, sessions := newCatalog(t)
	racing := &racingSessionStore{SessionStore: sessions}
	service := app.NewSessionService(quizzes, racing)

	quiz, _ := service.GetQuiz(ctx, "DEMO0001")
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[0].ID, SelectedOptionIDs: []int64{correctOptionID(t, quiz.Questions[0])},
	})

	score, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("finalize failed after losing insert race: %v", err)
	}
	// The winner recorded 0 correct; the loser must surface that row.
	if score.CorrectAnswers != 0 {
		t.Fatalf("expected winner's stored result, got %d correct", score.CorrectAnswers)
	}
	if !racing.raced {
		t.Fatalf("race was not exercised")
	}
}

func TestClearSessionAllowsRetake(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionService(t)
	quiz, _ := service.GetQuiz(ctx, "DEMO0001")

	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, Text: "nope",
	})
	first, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if first.CorrectAnswers != 0 {
		t.Fatalf("expected 0 correct on first attempt, got %d", first.CorrectAnswers)
	}

	if err := service.ClearSession(ctx, "DEMO0001", "u1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	snapshot, err := service.Snapshot(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snapshot.Completed || len(snapshot.Answers) != 0 {
		t.Fatalf("expected empty session after clear, got %+v", snapshot)
	}

	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, Text: "42",
	})
	retake, err := service.Finalize(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("retake finalize failed: %v", err)
	}
	if retake.CorrectAnswers != 1 {
		t.Fatalf("expected fresh scoring on retake, got %d correct", retake.CorrectAnswers)
	}
}

func TestClearSessionUnknownCodeIsNoop(t *testing.T) {
	service, _, _ := newSessionService(t)
	if err := service.ClearSession(context.Background(), "NOPE1234", "u1"); err != nil {
		t.Fatalf("expected nil for unknown access code, got %v", err)
	}
}

func TestSnapshotTimestamps(t *testing.T) {
	ctx := context.Background()
	quizzes, sessions := newCatalog(t)

	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	service := app.NewSessionServiceWithClock(quizzes, sessions, now)

	quiz, _ := service.GetQuiz(ctx, "DEMO0001")
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[0].ID, SelectedOptionIDs: []int64{quiz.Questions[0].Options[0].ID},
	})

	clock = clock.Add(5 * time.Minute)
	mustSave(t, service, "DEMO0001", "u1", domain.QuestionAnswer{
		QuestionID: quiz.Questions[1].ID, Text: "42",
	})

	snapshot, err := service.Snapshot(ctx, "DEMO0001", "u1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !snapshot.StartedAt.Equal(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartedAt should be the earliest answer, got %v", snapshot.StartedAt)
	}
	if !snapshot.LastUpdatedAt.Equal(time.Date(2025, 6, 10, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("LastUpdatedAt should be the latest answer, got %v", snapshot.LastUpdatedAt)
	}
	if len(snapshot.Answers) != 2 {
		t.Fatalf("expected 2 answers in snapshot, got %d", len(snapshot.Answers))
	}
}

// racingSessionStore makes the first CreateResult lose to a concurrent
// finalizer by slipping a winner row in first.
type racingSessionStore struct {
	*memory.SessionStore
	raced bool
}

func (s *racingSessionStore) CreateResult(ctx context.Context, result domain.QuizResult, marks map[int64]domain.Correctness) error {
	if !s.raced {
		s.raced = true
		winner := result
		winner.CorrectAnswers = 0
		if err := s.SessionStore.CreateResult(ctx, winner, nil); err != nil {
			return err
		}
	}
	return s.SessionStore.CreateResult(ctx, result, marks)
}

func newSessionService(t *testing.T) (*app.SessionService, *memory.QuizStore, *memory.SessionStore) {
	t.Helper()
	quizzes, sessions := newCatalog(t)
	return app.NewSessionService(quizzes, sessions), quizzes, sessions
}

// newCatalog seeds one quiz with a choice question and a free text question
// under the access code DEMO0001.
func newCatalog(t *testing.T) (*memory.QuizStore, *memory.SessionStore) {
	t.Helper()
	sessions := memory.NewSessionStore()
	quizzes := memory.NewQuizStore(sessions)

	quiz := domain.Quiz{
		Title:      "General Knowledge",
		AccessCode: "DEMO0001",
		Questions: []domain.Question{
			{
				Text: "What is 2 + 2?", Type: domain.QuestionMultipleChoice, Order: 1,
				Options: []domain.AnswerOption{
					{Text: "3", Order: 1},
					{Text: "4", Order: 2, Correct: true},
					{Text: "5", Order: 3},
				},
			},
			{Text: "The answer to everything?", Type: domain.QuestionFreeText, Order: 2, CorrectText: "42"},
		},
	}
	if err := quizzes.Create(context.Background(), &quiz); err != nil {
		t.Fatalf("seed quiz failed: %v", err)
	}
	return quizzes, sessions
}

func mustSave(t *testing.T, service *app.SessionService, code, userID string, answer domain.QuestionAnswer) {
	t.Helper()
	if err := service.SaveAnswer(context.Background(), code, userID, answer); err != nil {
		t.Fatalf("save answer failed: %v", err)
	}
}

func correctOptionID(t *testing.T, question domain.Question) int64 {
	t.Helper()
	for _, opt := range question.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	t.Fatalf("question %d has no correct option", question.ID)
	return 0
}
