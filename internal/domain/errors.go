package domain

import "errors"

var (
	// ErrQuizNotFound indicates no quiz exists for the given access code or id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID does not belong to the quiz.
	ErrQuestionNotFound = errors.New("question not found in quiz")
	// ErrInvalidAnswer indicates an answer payload whose shape does not match
	// the question type.
	ErrInvalidAnswer = errors.New("answer does not match question type")
	// ErrInvalidQuiz indicates an authoring draft that violates the quiz
	// structure rules.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrResultExists signals that a result row for the (user, quiz) pair was
	// already inserted, typically by a concurrent finalize. Callers fall back
	// to reading the winning row; this error never reaches the API surface.
	ErrResultExists = errors.New("quiz result already exists")
)
