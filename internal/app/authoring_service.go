package app

import (
	"context"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"
)

// QuizStore is the write-capable view of the quiz catalog used by authoring.
// Deleting a quiz cascades to its questions, options, answers, and results;
// the cascade is the store's responsibility.
type QuizStore interface {
	QuizCatalog
	CodeChecker
	FindByID(ctx context.Context, quizID int64) (domain.Quiz, error)
	// Create persists the quiz and assigns ids to it, its questions, and its
	// options in place.
	Create(ctx context.Context, quiz *domain.Quiz) error
	// Replace overwrites the quiz's title, description, and entire question
	// set, keeping its id and access code.
	Replace(ctx context.Context, quiz *domain.Quiz) error
	Delete(ctx context.Context, quizID int64) error
}

// AuthoringService owns quiz creation, replacement, and deletion. The
// quiz-taking core treats the catalog as read-only.
type AuthoringService struct {
	quizzes QuizStore
	codes   *AccessCodeGenerator
	now     func() time.Time
}

func NewAuthoringService(quizzes QuizStore) *AuthoringService {
	return &AuthoringService{
		quizzes: quizzes,
		codes:   NewAccessCodeGenerator(quizzes),
		now:     time.Now,
	}
}

// CreateQuiz validates the draft, assigns a fresh access code, and persists
// the quiz.
func (s *AuthoringService) CreateQuiz(ctx context.Context, draft domain.QuizDraft) (domain.Quiz, error) {
	quiz, err := buildQuiz(draft)
	if err != nil {
		return domain.Quiz{}, err
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate access code: %w", err)
	}
	quiz.AccessCode = code
	quiz.CreatedAt = s.now().UTC()

	if err := s.quizzes.Create(ctx, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// UpdateQuiz replaces the questions of an existing quiz. The access code and
// creation timestamp are retained; old questions and their options are
// removed by the store.
func (s *AuthoringService) UpdateQuiz(ctx context.Context, quizID int64, draft domain.QuizDraft) (domain.Quiz, error) {
	existing, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz, err := buildQuiz(draft)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = existing.ID
	quiz.AccessCode = existing.AccessCode
	quiz.CreatedAt = existing.CreatedAt
	for i := range quiz.Questions {
		quiz.Questions[i].QuizID = existing.ID
	}

	if err := s.quizzes.Replace(ctx, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("replace quiz %d: %w", quizID, err)
	}
	return quiz, nil
}

// DeleteQuiz removes the quiz and everything hanging off it.
func (s *AuthoringService) DeleteQuiz(ctx context.Context, quizID int64) error {
	if _, err := s.quizzes.FindByID(ctx, quizID); err != nil {
		return err
	}
	return s.quizzes.Delete(ctx, quizID)
}

func buildQuiz(draft domain.QuizDraft) (domain.Quiz, error) {
	if draft.Title == "" {
		return domain.Quiz{}, fmt.Errorf("title is required: %w", domain.ErrInvalidQuiz)
	}

	quiz := domain.Quiz{
		Title:       draft.Title,
		Description: draft.Description,
		Questions:   make([]domain.Question, 0, len(draft.Questions)),
	}

	for i, qd := range draft.Questions {
		if qd.Text == "" {
			return domain.Quiz{}, fmt.Errorf("question %d: text is required: %w", i+1, domain.ErrInvalidQuiz)
		}

		question := domain.Question{
			Text:  qd.Text,
			Type:  qd.Type,
			Order: qd.Order,
		}
		if question.Order <= 0 {
			question.Order = i + 1
		}

		switch qd.Type {
		case domain.QuestionMultipleChoice:
			if len(qd.Options) == 0 {
				return domain.Quiz{}, fmt.Errorf("question %d: multiple choice needs options: %w", i+1, domain.ErrInvalidQuiz)
			}
			question.Options = make([]domain.AnswerOption, 0, len(qd.Options))
			for j, od := range qd.Options {
				opt := domain.AnswerOption{
					Text:    od.Text,
					Correct: od.Correct,
					Order:   od.Order,
				}
				if opt.Order <= 0 {
					opt.Order = j + 1
				}
				question.Options = append(question.Options, opt)
			}
		case domain.QuestionFreeText:
			if len(qd.Options) > 0 {
				return domain.Quiz{}, fmt.Errorf("question %d: free text carries no options: %w", i+1, domain.ErrInvalidQuiz)
			}
			if qd.CorrectText == "" {
				return domain.Quiz{}, fmt.Errorf("question %d: free text needs a canonical answer: %w", i+1, domain.ErrInvalidQuiz)
			}
			question.CorrectText = qd.CorrectText
		default:
			return domain.Quiz{}, fmt.Errorf("question %d: unknown type %q: %w", i+1, qd.Type, domain.ErrInvalidQuiz)
		}

		quiz.Questions = append(quiz.Questions, question)
	}

	return quiz, nil
}
