package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// QuizCatalog loads quiz definitions by access code (from cache/backing store).
type QuizCatalog interface {
	FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error)
}

// SessionStore persists per-user answers and finalized results. Uniqueness of
// (user, quiz, question) answer rows and (user, quiz) result rows is enforced
// by the store, not by the service.
type SessionStore interface {
	// UpsertAnswer overwrites any existing row for the answer's key, resetting
	// its correctness to Unknown; a new row gets CreatedAt = UpdatedAt.
	UpsertAnswer(ctx context.Context, answer domain.UserAnswer) error
	ListAnswers(ctx context.Context, quizID int64, userID string) ([]domain.UserAnswer, error)
	// AnnotateAnswer sets the correctness flag on an existing row; absence is
	// not an error.
	AnnotateAnswer(ctx context.Context, quizID, questionID int64, userID string, c domain.Correctness) error
	// FindResult returns nil when the pair has no finalized result.
	FindResult(ctx context.Context, quizID int64, userID string) (*domain.QuizResult, error)
	// CreateResult inserts the result row and applies the correctness marks to
	// the answer rows in one transaction. Returns domain.ErrResultExists when
	// a result row is already present for the pair.
	CreateResult(ctx context.Context, result domain.QuizResult, marks map[int64]domain.Correctness) error
	// Clear removes all answer rows and the result row for the pair. Idempotent.
	Clear(ctx context.Context, quizID int64, userID string) error
}

// SessionService coordinates quiz-taking sessions: saving answers, deriving
// session snapshots, and finalizing scores exactly once per (user, quiz) pair.
type SessionService struct {
	catalog QuizCatalog
	store   SessionStore
	now     func() time.Time
}

func NewSessionService(catalog QuizCatalog, store SessionStore) *SessionService {
	return NewSessionServiceWithClock(catalog, store, time.Now)
}

// NewSessionServiceWithClock allows deterministic timestamps in tests.
func NewSessionServiceWithClock(catalog QuizCatalog, store SessionStore, now func() time.Time) *SessionService {
	return &SessionService{catalog: catalog, store: store, now: now}
}

// GetQuiz resolves a quiz by access code. The caller-facing view (with
// answer keys stripped) is shaped at the transport layer.
func (s *SessionService) GetQuiz(ctx context.Context, accessCode string) (domain.Quiz, error) {
	return s.catalog.FindByAccessCode(ctx, accessCode)
}

// SaveAnswer validates that the question belongs to the quiz and that the
// payload shape matches the question type, then upserts the answer row.
// Saving is allowed after finalization; the stored result stays authoritative
// until the session is cleared.
func (s *SessionService) SaveAnswer(ctx context.Context, accessCode, userID string, answer domain.QuestionAnswer) error {
	quiz, err := s.catalog.FindByAccessCode(ctx, accessCode)
	if err != nil {
		return err
	}

	question, ok := findQuestion(quiz, answer.QuestionID)
	if !ok {
		return fmt.Errorf("question %d in quiz %s: %w", answer.QuestionID, accessCode, domain.ErrQuestionNotFound)
	}

	row := domain.UserAnswer{
		UserID:      userID,
		QuizID:      quiz.ID,
		QuestionID:  question.ID,
		Correctness: domain.CorrectnessUnknown,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}

	switch question.Type {
	case domain.QuestionFreeText:
		if len(answer.SelectedOptionIDs) > 0 {
			return fmt.Errorf("question %d expects text: %w", question.ID, domain.ErrInvalidAnswer)
		}
		row.Text = answer.Text
	default:
		if answer.Text != "" {
			return fmt.Errorf("question %d expects option selections: %w", question.ID, domain.ErrInvalidAnswer)
		}
		row.SelectedOptionIDs = normalizeIDs(answer.SelectedOptionIDs)
	}

	return s.store.UpsertAnswer(ctx, row)
}

// ListAnswers returns the user's saved answers for the quiz.
func (s *SessionService) ListAnswers(ctx context.Context, accessCode, userID string) ([]domain.QuestionAnswer, error) {
	quiz, err := s.catalog.FindByAccessCode(ctx, accessCode)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, quiz.ID, userID)
	if err != nil {
		return nil, err
	}
	return toPayloads(answers), nil
}

// Snapshot materializes the user's session for the quiz from its answer and
// result rows. If the session is finalized the persisted result is attached
// as-is; scoring is not rerun.
func (s *SessionService) Snapshot(ctx context.Context, accessCode, userID string) (domain.SessionSnapshot, error) {
	quiz, err := s.catalog.FindByAccessCode(ctx, accessCode)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	answers, err := s.store.ListAnswers(ctx, quiz.ID, userID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	result, err := s.store.FindResult(ctx, quiz.ID, userID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	now := s.now().UTC()
	snapshot := domain.SessionSnapshot{
		UserID:        userID,
		AccessCode:    accessCode,
		StartedAt:     now,
		LastUpdatedAt: now,
		Completed:     result != nil,
		Answers:       toPayloads(answers),
	}
	if len(answers) > 0 {
		snapshot.StartedAt = answers[0].CreatedAt
		snapshot.LastUpdatedAt = answers[0].UpdatedAt
		for _, a := range answers[1:] {
			if a.CreatedAt.Before(snapshot.StartedAt) {
				snapshot.StartedAt = a.CreatedAt
			}
			if a.UpdatedAt.After(snapshot.LastUpdatedAt) {
				snapshot.LastUpdatedAt = a.UpdatedAt
			}
		}
	}

	if result != nil {
		score := buildStoredScore(quiz, answers, *result)
		snapshot.Result = &score
	}

	return snapshot, nil
}

// Finalize computes and durably records the user's score for the quiz. The
// first call scores the current answers, inserts the result row, and
// annotates every answer row with its correctness, atomically. Subsequent
// calls return the stored result without rescoring. A concurrent finalize
// losing the insert race silently falls back to the winner's row.
func (s *SessionService) Finalize(ctx context.Context, accessCode, userID string) (domain.QuizScore, error) {
	quiz, err := s.catalog.FindByAccessCode(ctx, accessCode)
	if err != nil {
		return domain.QuizScore{}, err
	}

	if stored, err := s.storedScore(ctx, quiz, userID); err != nil {
		return domain.QuizScore{}, err
	} else if stored != nil {
		return *stored, nil
	}

	answers, err := s.store.ListAnswers(ctx, quiz.ID, userID)
	if err != nil {
		return domain.QuizScore{}, err
	}

	score := ScoreQuiz(quiz, answers)

	marks := make(map[int64]domain.Correctness, len(answers))
	for _, qr := range score.Questions {
		if _, answered := answerFor(answers, qr.QuestionID); answered {
			marks[qr.QuestionID] = toCorrectness(qr.Correct)
		}
	}

	result := domain.QuizResult{
		UserID:         userID,
		QuizID:         quiz.ID,
		TotalQuestions: score.TotalQuestions,
		CorrectAnswers: score.CorrectAnswers,
		CompletedAt:    s.now().UTC(),
	}

	if err := s.store.CreateResult(ctx, result, marks); err != nil {
		if errors.Is(err, domain.ErrResultExists) {
			// Lost the finalize race; the winner's row is authoritative.
			stored, err := s.storedScore(ctx, quiz, userID)
			if err != nil {
				return domain.QuizScore{}, err
			}
			if stored != nil {
				return *stored, nil
			}
		}
		return domain.QuizScore{}, err
	}

	return score, nil
}

// ClearSession removes all answers and the result row for the pair, allowing
// a fresh attempt. Clearing an unknown or empty session is not an error.
func (s *SessionService) ClearSession(ctx context.Context, accessCode, userID string) error {
	quiz, err := s.catalog.FindByAccessCode(ctx, accessCode)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return nil
		}
		return err
	}
	return s.store.Clear(ctx, quiz.ID, userID)
}

func (s *SessionService) storedScore(ctx context.Context, quiz domain.Quiz, userID string) (*domain.QuizScore, error) {
	result, err := s.store.FindResult(ctx, quiz.ID, userID)
	if err != nil || result == nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, quiz.ID, userID)
	if err != nil {
		return nil, err
	}
	score := buildStoredScore(quiz, answers, *result)
	return &score, nil
}

// buildStoredScore reconstructs the graded view from a persisted result and
// the annotated answer rows. Totals come from the stored row; per-question
// flags come from the annotations left by the finalizing call.
func buildStoredScore(quiz domain.Quiz, answers []domain.UserAnswer, result domain.QuizResult) domain.QuizScore {
	score := domain.QuizScore{
		QuizID:          quiz.ID,
		Title:           quiz.Title,
		TotalQuestions:  result.TotalQuestions,
		CorrectAnswers:  result.CorrectAnswers,
		ScorePercentage: result.ScorePercentage(),
		Questions:       make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}

	for _, question := range quiz.Questions {
		answer, _ := answerFor(answers, question.ID)
		qr := domain.QuestionResult{
			QuestionID: question.ID,
			Text:       question.Text,
			Type:       question.Type,
			Correct:    answer != nil && answer.Correctness == domain.CorrectnessCorrect,
		}
		switch question.Type {
		case domain.QuestionFreeText:
			qr.CorrectText = question.CorrectText
			if answer != nil {
				qr.UserText = answer.Text
			}
		default:
			selected := map[int64]struct{}{}
			if answer != nil {
				selected = toIDSet(answer.SelectedOptionIDs)
			}
			qr.Options = make([]domain.OptionResult, 0, len(question.Options))
			for _, opt := range question.Options {
				_, isSelected := selected[opt.ID]
				qr.Options = append(qr.Options, domain.OptionResult{
					ID:       opt.ID,
					Text:     opt.Text,
					Correct:  opt.Correct,
					Selected: isSelected,
				})
			}
		}
		score.Questions = append(score.Questions, qr)
	}

	return score
}

func findQuestion(quiz domain.Quiz, questionID int64) (domain.Question, bool) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

func answerFor(answers []domain.UserAnswer, questionID int64) (*domain.UserAnswer, bool) {
	for i := range answers {
		if answers[i].QuestionID == questionID {
			return &answers[i], true
		}
	}
	return nil, false
}

func toPayloads(answers []domain.UserAnswer) []domain.QuestionAnswer {
	payloads := make([]domain.QuestionAnswer, 0, len(answers))
	for _, a := range answers {
		payloads = append(payloads, domain.QuestionAnswer{
			QuestionID:        a.QuestionID,
			SelectedOptionIDs: a.SelectedOptionIDs,
			Text:              a.Text,
		})
	}
	return payloads
}

// normalizeIDs deduplicates and sorts a selection so it behaves as a set.
func normalizeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toCorrectness(correct bool) domain.Correctness {
	if correct {
		return domain.CorrectnessCorrect
	}
	return domain.CorrectnessIncorrect
}
