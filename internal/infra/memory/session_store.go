package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

type answerKey struct {
	userID     string
	quizID     int64
	questionID int64
}

type resultKey struct {
	userID string
	quizID int64
}

// SessionStore is an in-memory implementation of app.SessionStore. The
// per-key maps give the same uniqueness guarantees the relational store
// enforces with constraints.
type SessionStore struct {
	mu      sync.Mutex
	answers map[answerKey]domain.UserAnswer
	results map[resultKey]domain.QuizResult
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		answers: make(map[answerKey]domain.UserAnswer),
		results: make(map[resultKey]domain.QuizResult),
	}
}

func (s *SessionStore) UpsertAnswer(_ context.Context, answer domain.UserAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey{userID: answer.UserID, quizID: answer.QuizID, questionID: answer.QuestionID}
	stored := answer
	stored.SelectedOptionIDs = append([]int64(nil), answer.SelectedOptionIDs...)
	stored.Correctness = domain.CorrectnessUnknown

	if existing, ok := s.answers[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.answers[key] = stored
	return nil
}

func (s *SessionStore) ListAnswers(_ context.Context, quizID int64, userID string) ([]domain.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.UserAnswer
	for key, answer := range s.answers {
		if key.quizID == quizID && key.userID == userID {
			a := answer
			a.SelectedOptionIDs = append([]int64(nil), answer.SelectedOptionIDs...)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *SessionStore) AnnotateAnswer(_ context.Context, quizID, questionID int64, userID string, c domain.Correctness) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey{userID: userID, quizID: quizID, questionID: questionID}
	answer, ok := s.answers[key]
	if !ok {
		return nil
	}
	answer.Correctness = c
	s.answers[key] = answer
	return nil
}

func (s *SessionStore) FindResult(_ context.Context, quizID int64, userID string) (*domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[resultKey{userID: userID, quizID: quizID}]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (s *SessionStore) CreateResult(_ context.Context, result domain.QuizResult, marks map[int64]domain.Correctness) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{userID: result.UserID, quizID: result.QuizID}
	if _, exists := s.results[key]; exists {
		return domain.ErrResultExists
	}
	s.results[key] = result

	for questionID, c := range marks {
		ak := answerKey{userID: result.UserID, quizID: result.QuizID, questionID: questionID}
		if answer, ok := s.answers[ak]; ok {
			answer.Correctness = c
			s.answers[ak] = answer
		}
	}
	return nil
}

func (s *SessionStore) Clear(_ context.Context, quizID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.answers {
		if key.quizID == quizID && key.userID == userID {
			delete(s.answers, key)
		}
	}
	delete(s.results, resultKey{userID: userID, quizID: quizID})
	return nil
}

// dropQuiz removes every answer and result for a quiz. Called by the quiz
// store when a quiz is deleted, mirroring the relational cascade.
func (s *SessionStore) dropQuiz(quizID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropAnswersLocked(quizID)
	for key := range s.results {
		if key.quizID == quizID {
			delete(s.results, key)
		}
	}
}

// dropAnswers removes every answer for a quiz, as happens when the question
// set is replaced.
func (s *SessionStore) dropAnswers(quizID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropAnswersLocked(quizID)
}

func (s *SessionStore) dropAnswersLocked(quizID int64) {
	for key := range s.answers {
		if key.quizID == quizID {
			delete(s.answers, key)
		}
	}
}
