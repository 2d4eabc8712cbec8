package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-session-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const codeUniqueViolation = "23505"

// SessionStore implements app.SessionStore on Postgres. The unique indexes
// on (user_id, quiz_id, question_id) and (user_id, quiz_id) are the
// concurrency control: upserts collapse onto one row, and the losing side of
// a finalize race surfaces as domain.ErrResultExists.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) UpsertAnswer(ctx context.Context, answer domain.UserAnswer) error {
	selected := answer.SelectedOptionIDs
	if selected == nil {
		selected = []int64{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_answers
		   (user_id, quiz_id, question_id, selected_option_ids, text_answer, correctness, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id, quiz_id, question_id) DO UPDATE SET
		   selected_option_ids = EXCLUDED.selected_option_ids,
		   text_answer = EXCLUDED.text_answer,
		   correctness = EXCLUDED.correctness,
		   updated_at = EXCLUDED.updated_at`,
		answer.UserID, answer.QuizID, answer.QuestionID,
		selected, answer.Text, domain.CorrectnessUnknown, answer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *SessionStore) ListAnswers(ctx context.Context, quizID int64, userID string) ([]domain.UserAnswer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, quiz_id, question_id, selected_option_ids, text_answer, correctness, created_at, updated_at
		 FROM user_answers WHERE quiz_id = $1 AND user_id = $2 ORDER BY question_id`,
		quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.UserAnswer
	for rows.Next() {
		var a domain.UserAnswer
		if err := rows.Scan(&a.UserID, &a.QuizID, &a.QuestionID,
			&a.SelectedOptionIDs, &a.Text, &a.Correctness, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

func (s *SessionStore) AnnotateAnswer(ctx context.Context, quizID, questionID int64, userID string, c domain.Correctness) error {
	// Absent rows are a no-op, so the affected count is not checked.
	_, err := s.pool.Exec(ctx,
		`UPDATE user_answers SET correctness = $4, updated_at = now()
		 WHERE quiz_id = $1 AND question_id = $2 AND user_id = $3`,
		quizID, questionID, userID, c)
	if err != nil {
		return fmt.Errorf("annotate answer: %w", err)
	}
	return nil
}

func (s *SessionStore) FindResult(ctx context.Context, quizID int64, userID string) (*domain.QuizResult, error) {
	var r domain.QuizResult
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, quiz_id, total_questions, correct_answers, completed_at
		 FROM quiz_results WHERE quiz_id = $1 AND user_id = $2`,
		quizID, userID).
		Scan(&r.UserID, &r.QuizID, &r.TotalQuestions, &r.CorrectAnswers, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find result: %w", err)
	}
	return &r, nil
}

func (s *SessionStore) CreateResult(ctx context.Context, result domain.QuizResult, marks map[int64]domain.Correctness) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quiz_results (user_id, quiz_id, total_questions, correct_answers, completed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		result.UserID, result.QuizID, result.TotalQuestions, result.CorrectAnswers, result.CompletedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return domain.ErrResultExists
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for questionID, c := range marks {
		_, err := tx.Exec(ctx,
			`UPDATE user_answers SET correctness = $4, updated_at = $5
			 WHERE quiz_id = $1 AND question_id = $2 AND user_id = $3`,
			result.QuizID, questionID, result.UserID, c, result.CompletedAt)
		if err != nil {
			return fmt.Errorf("annotate answer %d: %w", questionID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *SessionStore) Clear(ctx context.Context, quizID int64, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM user_answers WHERE quiz_id = $1 AND user_id = $2`, quizID, userID); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM quiz_results WHERE quiz_id = $1 AND user_id = $2`, quizID, userID); err != nil {
		return fmt.Errorf("clear result: %w", err)
	}
	return tx.Commit(ctx)
}
