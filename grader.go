package docquiz

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// Grader evaluates submitted answers against a quiz's persisted
// questions. Scoring is pure and deterministic; every submission
// appends a new attempt rather than upserting.
type Grader struct {
	store Store
	now   func() time.Time
}

// NewGrader creates a grader. A nil clock defaults to time.Now.
func NewGrader(store Store, clock func() time.Time) *Grader {
	if clock == nil {
		clock = time.Now
	}
	return &Grader{store: store, now: clock}
}

// Grade scores one submission against every persisted question of the
// quiz (not just the answered ones) and persists the attempt plus one
// answer row per question as a single atomic unit.
func (g *Grader) Grade(ctx context.Context, userID, quizID string, submitted []SubmittedAnswer) (QuizResult, error) {
	if userID == "" {
		return QuizResult{}, ErrUnauthorized
	}

	quiz, err := g.store.GetQuizByID(ctx, quizID, userID)
	if err != nil {
		return QuizResult{}, err
	}

	questions, err := g.store.GetQuestionsByQuizID(ctx, quiz.ID)
	if err != nil {
		return QuizResult{}, err
	}

	attemptID := uuid.NewString()
	correctCount, answers := gradeQuestions(attemptID, questions, submitted)

	now := g.now().UTC()
	attempt := QuizAttempt{
		ID:          attemptID,
		QuizID:      quiz.ID,
		UserID:      userID,
		StartedAt:   now,
		SubmittedAt: now,
		ScorePct:    scorePct(correctCount, len(questions)),
	}
	if err := g.store.CreateQuizAttempt(ctx, attempt, answers); err != nil {
		return QuizResult{}, err
	}

	return QuizResult{
		QuizID:       quiz.ID,
		AttemptID:    attemptID,
		Total:        len(questions),
		CorrectCount: correctCount,
		Score:        attempt.ScorePct,
		Answers:      answers,
	}, nil
}

// gradeQuestions marks every question. A missing or unknown choice
// grades as incorrect, never as an error.
func gradeQuestions(attemptID string, questions []Question, submitted []SubmittedAnswer) (int, []Answer) {
	chosen := make(map[string]*string, len(submitted))
	for _, sa := range submitted {
		chosen[sa.QuestionID] = sa.ChosenOptionID
	}

	correctCount := 0
	answers := make([]Answer, 0, len(questions))
	for _, question := range questions {
		choice := chosen[question.ID] // nil when skipped
		isCorrect := choice != nil && *choice == question.Correct
		if isCorrect {
			correctCount++
		}

		answer := Answer{
			AttemptID:      attemptID,
			QuestionID:     question.ID,
			ChosenOptionID: choice,
			IsCorrect:      isCorrect,
		}
		if !isCorrect {
			answer.Feedback = question.Explanation
		}
		answers = append(answers, answer)
	}
	return correctCount, answers
}

// scorePct is round(correct/total*100), 0 when the quiz has no
// questions.
func scorePct(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
