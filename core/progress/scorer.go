package progress

import (
	"fmt"
	"math"
	"strings"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
)

// Bonus policies. A policy knob, not a hidden constant: callers configure it
// via ProgressConfig.BonusPolicy.
const (
	BonusPolicyThreshold    = "threshold"
	BonusPolicyProportional = "proportional"
)

// ScoringPolicy controls how a quiz score converts into points.
type ScoringPolicy struct {
	// BonusPolicy is BonusPolicyThreshold or BonusPolicyProportional.
	BonusPolicy string
	// PassingThreshold is the minimum fraction of correct answers required to
	// earn the step's points under the threshold policy.
	PassingThreshold float64
}

func (p ScoringPolicy) String() string {
	return fmt.Sprintf("%s(%.2f)", p.BonusPolicy, p.PassingThreshold)
}

// QuizScore is the outcome of scoring one quiz submission.
type QuizScore struct {
	FractionCorrect float64
	// Points is the total awarded for the step: the step's points gated or
	// scaled by the policy, plus the bonus points of each correctly answered
	// question.
	Points int
}

// ScoreQuiz scores the submitted responses against the step's question bank.
// Pure function, no side effects.
//
// Comparison is type-dependent: multiple-choice and true/false answers must
// match the stored answer exactly; free-text answers are compared trimmed and
// case-insensitively. Malformed responses (unknown, duplicate or missing
// question ids) are fatal for the submission.
func ScoreQuiz(step journey.Step, questions []journey.QuizQuestion, responses []QuizResponse, policy ScoringPolicy) (QuizScore, error) {
	if len(questions) == 0 {
		return QuizScore{}, &ResponseFormatError{Reason: "step has no quiz"}
	}

	byID := make(map[string]journey.QuizQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	answered := make(map[string]bool, len(responses))
	var correct, questionBonus int
	for _, resp := range responses {
		q, ok := byID[resp.QuestionID]
		if !ok {
			return QuizScore{}, &ResponseFormatError{Reason: "unknown question id " + resp.QuestionID}
		}
		if answered[resp.QuestionID] {
			return QuizScore{}, &ResponseFormatError{Reason: "duplicate response for question " + resp.QuestionID}
		}
		answered[resp.QuestionID] = true

		if answerMatches(q, resp.Answer) {
			correct++
			questionBonus += q.BonusPoints
		}
	}
	if len(answered) != len(questions) {
		return QuizScore{}, &ResponseFormatError{
			Reason: fmt.Sprintf("expected %d responses, got %d", len(questions), len(answered)),
		}
	}

	score := QuizScore{FractionCorrect: float64(correct) / float64(len(questions))}

	switch policy.BonusPolicy {
	case BonusPolicyProportional:
		score.Points = int(math.Round(float64(step.Points) * score.FractionCorrect))
	default: // threshold: all-or-nothing; the step visit itself still counts as completed
		if score.FractionCorrect >= policy.PassingThreshold {
			score.Points = step.Points
		}
	}
	score.Points += questionBonus

	return score, nil
}

func answerMatches(q journey.QuizQuestion, answer string) bool {
	switch q.Type {
	case journey.QuestionFreeText:
		return strings.EqualFold(core.CleanString(answer), core.CleanString(q.CorrectAnswer))
	default: // multiple-choice, true/false: exact match against the stored answer
		return answer == q.CorrectAnswer
	}
}
