package domain

import (
	"math"
	"time"
)

// QuestionType distinguishes the two supported question variants.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeText       QuestionType = "free_text"
)

// Correctness is the tri-state grading flag on a stored answer.
// Unknown means the answer changed since it was last scored.
type Correctness string

const (
	CorrectnessUnknown   Correctness = "unknown"
	CorrectnessCorrect   Correctness = "correct"
	CorrectnessIncorrect Correctness = "incorrect"
)

// Quiz is a published quiz with its ordered questions.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AccessCode  string     `json:"accessCode"`
	CreatedAt   time.Time  `json:"createdAt"`
	Questions   []Question `json:"questions"`
}

// Question is one quiz question. MultipleChoice questions carry Options;
// FreeText questions carry CorrectText instead.
type Question struct {
	ID          int64          `json:"id"`
	QuizID      int64          `json:"quizId"`
	Text        string         `json:"text"`
	Type        QuestionType   `json:"type"`
	Order       int            `json:"order"`
	Options     []AnswerOption `json:"options,omitempty"`
	CorrectText string         `json:"correctText,omitempty"`
}

// AnswerOption is a selectable option of a MultipleChoice question.
type AnswerOption struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	Order      int    `json:"order"`
	Correct    bool   `json:"correct"`
}

// QuestionAnswer is the payload a taker submits for a single question.
// Exactly one of SelectedOptionIDs and Text is meaningful, depending on
// the question type.
type QuestionAnswer struct {
	QuestionID        int64   `json:"questionId"`
	SelectedOptionIDs []int64 `json:"selectedOptionIds,omitempty"`
	Text              string  `json:"text,omitempty"`
}

// UserAnswer is the persisted answer of one user to one question.
// At most one row exists per (UserID, QuizID, QuestionID).
type UserAnswer struct {
	UserID            string
	QuizID            int64
	QuestionID        int64
	SelectedOptionIDs []int64
	Text              string
	Correctness       Correctness
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// QuizResult is the finalized outcome of one user's run through a quiz.
// At most one row exists per (UserID, QuizID).
type QuizResult struct {
	UserID         string
	QuizID         int64
	TotalQuestions int
	CorrectAnswers int
	CompletedAt    time.Time
}

// ScorePercentage derives the score as a percentage rounded to two decimals.
func (r QuizResult) ScorePercentage() float64 {
	if r.TotalQuestions == 0 {
		return 0
	}
	pct := float64(r.CorrectAnswers) / float64(r.TotalQuestions) * 100
	return math.Round(pct*100) / 100
}

// OptionResult is the graded view of a single option for UI rendering.
type OptionResult struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	Selected bool   `json:"selected"`
}

// QuestionResult is the graded outcome for one question.
type QuestionResult struct {
	QuestionID  int64          `json:"questionId"`
	Text        string         `json:"text"`
	Type        QuestionType   `json:"type"`
	Correct     bool           `json:"correct"`
	Options     []OptionResult `json:"options,omitempty"`
	UserText    string         `json:"userText,omitempty"`
	CorrectText string         `json:"correctText,omitempty"`
}

// QuizScore is the full graded outcome of a quiz run, one QuestionResult
// per question in quiz order.
type QuizScore struct {
	QuizID          int64            `json:"quizId"`
	Title           string           `json:"title"`
	TotalQuestions  int              `json:"totalQuestions"`
	CorrectAnswers  int              `json:"correctAnswers"`
	ScorePercentage float64          `json:"scorePercentage"`
	Questions       []QuestionResult `json:"questions"`
}

// SessionSnapshot is the derived state of one user's progress on one quiz.
// It is materialized on demand from answer and result rows; there is no
// stored session entity.
type SessionSnapshot struct {
	UserID        string           `json:"userId"`
	AccessCode    string           `json:"accessCode"`
	StartedAt     time.Time        `json:"startedAt"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
	Completed     bool             `json:"completed"`
	Answers       []QuestionAnswer `json:"answers"`
	Result        *QuizScore       `json:"result,omitempty"`
}

// QuizDraft is the authoring input for creating or replacing a quiz.
type QuizDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Questions   []QuestionDraft `json:"questions"`
}

// QuestionDraft is the authoring input for a single question.
type QuestionDraft struct {
	Text        string        `json:"text"`
	Type        QuestionType  `json:"type"`
	Order       int           `json:"order"`
	Options     []OptionDraft `json:"options,omitempty"`
	CorrectText string        `json:"correctText,omitempty"`
}

// OptionDraft is the authoring input for a single answer option.
type OptionDraft struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Order   int    `json:"order"`
}
