package app

import (
	"strings"

	"quiz-session-service/internal/domain"
)

// ScoreQuiz grades a user's current answers against the quiz definition.
// Pure computation: one QuestionResult per question in quiz order, plus
// aggregate counts. Questions without a submitted answer are counted in
// TotalQuestions and never scored correct.
func ScoreQuiz(quiz domain.Quiz, answers []domain.UserAnswer) domain.QuizScore {
	byQuestion := make(map[int64]*domain.UserAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	score := domain.QuizScore{
		QuizID:         quiz.ID,
		Title:          quiz.Title,
		TotalQuestions: len(quiz.Questions),
		Questions:      make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}

	for _, question := range quiz.Questions {
		qr := scoreQuestion(question, byQuestion[question.ID])
		if qr.Correct {
			score.CorrectAnswers++
		}
		score.Questions = append(score.Questions, qr)
	}

	score.ScorePercentage = domain.QuizResult{
		TotalQuestions: score.TotalQuestions,
		CorrectAnswers: score.CorrectAnswers,
	}.ScorePercentage()

	return score
}

func scoreQuestion(question domain.Question, answer *domain.UserAnswer) domain.QuestionResult {
	qr := domain.QuestionResult{
		QuestionID: question.ID,
		Text:       question.Text,
		Type:       question.Type,
	}

	switch question.Type {
	case domain.QuestionFreeText:
		qr.CorrectText = question.CorrectText
		if answer != nil {
			qr.UserText = answer.Text
			qr.Correct = freeTextMatches(answer.Text, question.CorrectText)
		}
	default: // multiple choice
		selected := toIDSet(nil)
		if answer != nil {
			selected = toIDSet(answer.SelectedOptionIDs)
		}
		correct := make(map[int64]struct{})
		qr.Options = make([]domain.OptionResult, 0, len(question.Options))
		for _, opt := range question.Options {
			if opt.Correct {
				correct[opt.ID] = struct{}{}
			}
			_, isSelected := selected[opt.ID]
			qr.Options = append(qr.Options, domain.OptionResult{
				ID:       opt.ID,
				Text:     opt.Text,
				Correct:  opt.Correct,
				Selected: isSelected,
			})
		}
		// Exact set equality; extra or missing selections both fail.
		// A question with no correct options and no selections grades correct.
		qr.Correct = answer != nil && setsEqual(correct, selected)
	}

	return qr
}

// freeTextMatches compares the submitted text against the canonical answer,
// trimmed and case-insensitive. Empty submissions and empty canonical
// answers never match.
func freeTextMatches(userText, correctText string) bool {
	if userText == "" || correctText == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(userText), strings.TrimSpace(correctText))
}

func toIDSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
