package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-session-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore implements app.QuizStore on Postgres. Questions and options are
// returned in their stored order; deletes cascade through the schema's
// foreign keys.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) FindByAccessCode(ctx context.Context, accessCode string) (domain.Quiz, error) {
	return s.findQuiz(ctx,
		`SELECT id, title, COALESCE(description, ''), access_code, created_at FROM quizzes WHERE access_code = $1`,
		accessCode)
}

func (s *QuizStore) FindByID(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.findQuiz(ctx,
		`SELECT id, title, COALESCE(description, ''), access_code, created_at FROM quizzes WHERE id = $1`,
		quizID)
}

func (s *QuizStore) findQuiz(ctx context.Context, stmt string, arg interface{}) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx, stmt, arg).
		Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.AccessCode, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("quiz %v: %w", arg, domain.ErrQuizNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	if err := s.loadQuestions(ctx, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *QuizStore) loadQuestions(ctx context.Context, quiz *domain.Quiz) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, text, type, ord, COALESCE(correct_text, '')
		 FROM questions WHERE quiz_id = $1 ORDER BY ord, id`, quiz.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Type, &q.Order, &q.CorrectText); err != nil {
			return fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(quiz.Questions) == 0 {
		return nil
	}

	questionIDs := make([]int64, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questionIDs = append(questionIDs, q.ID)
	}

	optRows, err := s.pool.Query(ctx,
		`SELECT id, question_id, text, ord, is_correct
		 FROM answer_options WHERE question_id = ANY($1) ORDER BY ord, id`, questionIDs)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt domain.AnswerOption
		if err := optRows.Scan(&opt.ID, &opt.QuestionID, &opt.Text, &opt.Order, &opt.Correct); err != nil {
			return fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[opt.QuestionID]; ok {
			quiz.Questions[i].Options = append(quiz.Questions[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	return nil
}

func (s *QuizStore) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quizzes WHERE access_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access code: %w", err)
	}
	return exists, nil
}

func (s *QuizStore) Create(ctx context.Context, quiz *domain.Quiz) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO quizzes (title, description, access_code, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4) RETURNING id`,
		quiz.Title, quiz.Description, quiz.AccessCode, quiz.CreatedAt).Scan(&quiz.ID)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	if err := insertQuestions(ctx, tx, quiz); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *QuizStore) Replace(ctx context.Context, quiz *domain.Quiz) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE quizzes SET title = $2, description = NULLIF($3, '') WHERE id = $1`,
		quiz.ID, quiz.Title, quiz.Description)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quiz %d: %w", quiz.ID, domain.ErrQuizNotFound)
	}

	// Dropping questions cascades to options and saved answers.
	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quiz.ID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	if err := insertQuestions(ctx, tx, quiz); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *QuizStore) Delete(ctx context.Context, quizID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	return nil
}

func insertQuestions(ctx context.Context, tx pgx.Tx, quiz *domain.Quiz) error {
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.QuizID = quiz.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, text, type, ord, correct_text)
			 VALUES ($1, $2, $3, $4, NULLIF($5, '')) RETURNING id`,
			quiz.ID, q.Text, q.Type, q.Order, q.CorrectText).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for j := range q.Options {
			opt := &q.Options[j]
			opt.QuestionID = q.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO answer_options (question_id, text, ord, is_correct)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				q.ID, opt.Text, opt.Order, opt.Correct).Scan(&opt.ID)
			if err != nil {
				return fmt.Errorf("insert option: %w", err)
			}
		}
	}
	return nil
}
