package selection

import (
	"errors"

	"quiz-session-service/internal/models"
)

// ErrNothingToRetry is returned when no question qualifies for a retry
// round.
var ErrNothingToRetry = errors.New("nothing to retry")

// SelectIncorrect derives the reduced unit sequence for a "retry wrong
// answers" session: each unit is pruned to the questions found in the
// incorrect or partial sets, and units left empty are dropped. Relative
// order of both units and questions is preserved from the original
// sequence.
func SelectIncorrect(units []models.AnswerableUnit, incorrect, partial map[string]bool) ([]models.AnswerableUnit, error) {
	qualifies := func(id string) bool { return incorrect[id] || partial[id] }

	var out []models.AnswerableUnit
	for _, u := range units {
		var kept []models.Question
		for _, q := range u.Questions {
			if qualifies(q.ID) {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			continue
		}
		reduced := u
		reduced.Questions = kept
		out = append(out, reduced)
	}
	if len(out) == 0 {
		return nil, ErrNothingToRetry
	}
	return out, nil
}
