package scoring

import (
	"math"

	"quiz-session-service/internal/models"
)

type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomePartial   Outcome = "partial"
	OutcomeIncorrect Outcome = "incorrect"
)

// partialCreditWeight scales the fractional credit for a proper subset of
// the correct options.
const partialCreditWeight = 0.5

// EvaluateQuestion classifies a submitted selection against the correct
// option set and returns its contribution to the running score.
//
//   - correct: selected set equals the correct set exactly, contribution 1.
//   - partial: selected is a non-empty proper subset of the correct set,
//     contribution 0.5 * |selected| / |correct|.
//   - incorrect: anything else (empty, any wrong option, superset),
//     contribution 0.
func EvaluateQuestion(correctIDs, selectedIDs []string) (Outcome, float64) {
	correct := toSet(correctIDs)
	selected := toSet(selectedIDs)

	if len(selected) == 0 {
		return OutcomeIncorrect, 0
	}
	for id := range selected {
		if !correct[id] {
			return OutcomeIncorrect, 0
		}
	}
	if len(selected) == len(correct) {
		return OutcomeCorrect, 1
	}
	return OutcomePartial, partialCreditWeight * float64(len(selected)) / float64(len(correct))
}

// ComputeFinalGrade derives the 0-20 grade shown on the results screen.
// Per question it counts max(0, correct selections - incorrect selections),
// sums those over all questions and scales by the total number of correct
// options. Note this deliberately differs from the additive live score:
// the grade subtracts wrong picks inside a question, the live score never
// does. Both are user-visible on different screens and must stay distinct.
func ComputeFinalGrade(questions []models.Question, answers map[string][]string) int {
	num := 0
	den := 0
	for i := range questions {
		q := &questions[i]
		correct := toSet(q.CorrectOptionIDs())
		den += len(correct)
		if len(correct) == 0 {
			continue
		}
		good, bad := 0, 0
		for _, id := range dedupe(answers[q.ID]) {
			if correct[id] {
				good++
			} else {
				bad++
			}
		}
		if d := good - bad; d > 0 {
			num += d
		}
	}
	if den == 0 {
		return 0
	}
	return int(math.Round(20 * float64(num) / float64(den)))
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
