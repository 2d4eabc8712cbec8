package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore, useful for
// tests and for running the server without Postgres. When wired with a
// SessionStore, deleting a quiz also drops its answers and results, matching
// the relational cascade.
type QuizStore struct {
	sessions *SessionStore

	mu      sync.RWMutex
	nextID  int64
	quizzes map[int64]domain.Quiz
	byCode  map[string]int64
}

func NewQuizStore(sessions *SessionStore) *QuizStore {
	return &QuizStore{
		sessions: sessions,
		quizzes:  make(map[int64]domain.Quiz),
		byCode:   make(map[string]int64),
	}
}

func (s *QuizStore) FindByAccessCode(_ context.Context, accessCode string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[accessCode]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("access code %s: %w", accessCode, domain.ErrQuizNotFound)
	}
	return cloneQuiz(s.quizzes[id]), nil
}

func (s *QuizStore) FindByID(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	return cloneQuiz(quiz), nil
}

func (s *QuizStore) AccessCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.byCode[code]
	return exists, nil
}

func (s *QuizStore) Create(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	quiz.ID = s.nextID
	s.assignQuestionIDsLocked(quiz)
	sortQuestions(quiz)

	s.quizzes[quiz.ID] = cloneQuiz(*quiz)
	s.byCode[quiz.AccessCode] = quiz.ID
	return nil
}

func (s *QuizStore) Replace(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quiz.ID]; !ok {
		return fmt.Errorf("quiz %d: %w", quiz.ID, domain.ErrQuizNotFound)
	}

	s.assignQuestionIDsLocked(quiz)
	sortQuestions(quiz)
	s.quizzes[quiz.ID] = cloneQuiz(*quiz)

	// Replacing the question set invalidates saved answers, like the
	// question-level cascade in the relational store.
	if s.sessions != nil {
		s.sessions.dropAnswers(quiz.ID)
	}
	return nil
}

func (s *QuizStore) Delete(_ context.Context, quizID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[quizID]
	if !ok {
		return fmt.Errorf("quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	delete(s.byCode, quiz.AccessCode)
	delete(s.quizzes, quizID)

	if s.sessions != nil {
		s.sessions.dropQuiz(quizID)
	}
	return nil
}

func (s *QuizStore) assignQuestionIDsLocked(quiz *domain.Quiz) {
	for i := range quiz.Questions {
		s.nextID++
		quiz.Questions[i].ID = s.nextID
		quiz.Questions[i].QuizID = quiz.ID
		for j := range quiz.Questions[i].Options {
			s.nextID++
			quiz.Questions[i].Options[j].ID = s.nextID
			quiz.Questions[i].Options[j].QuestionID = quiz.Questions[i].ID
		}
	}
}

func sortQuestions(quiz *domain.Quiz) {
	sort.SliceStable(quiz.Questions, func(i, j int) bool {
		return quiz.Questions[i].Order < quiz.Questions[j].Order
	})
	for i := range quiz.Questions {
		opts := quiz.Questions[i].Options
		sort.SliceStable(opts, func(a, b int) bool { return opts[a].Order < opts[b].Order })
	}
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	out := quiz
	out.Questions = make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		cq := q
		cq.Options = append([]domain.AnswerOption(nil), q.Options...)
		out.Questions[i] = cq
	}
	return out
}
