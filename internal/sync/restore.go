package syncx

import (
	"quiz-session-service/internal/assembler"
	"quiz-session-service/internal/engine"
	"quiz-session-service/internal/models"
	"quiz-session-service/internal/scoring"
)

// Restore rebuilds engine state from a persisted record and, when present,
// the local fallback cache entry. Correctness is re-derived through the
// scoring engine rather than trusted from the record, answers referencing
// questions no longer in the unit sequence are skipped, the unit index is
// clamped to the current sequence, and elapsed time prefers the cache value
// because it is finer-grained than the remote timestamps.
func Restore(s *engine.State, rec *models.SessionRecord, entry *models.CacheEntry) {
	index := assembler.QuestionIndex(s.Units)

	answers := rec.Answers
	if entry != nil && len(entry.Answers) > 0 {
		answers = entry.Answers
	}

	for qid, selected := range answers {
		q, ok := index[qid]
		if !ok || len(selected) == 0 {
			continue
		}
		outcome, contribution := scoring.EvaluateQuestion(q.CorrectOptionIDs(), selected)
		s.Answers[qid] = append([]string(nil), selected...)
		switch outcome {
		case scoring.OutcomeCorrect:
			s.Correct[qid] = true
		case scoring.OutcomePartial:
			s.Partial[qid] = true
		default:
			s.Incorrect[qid] = true
		}
		s.RunningScore += contribution
	}

	// A unit counts as answered once every one of its questions has a
	// restored answer.
	for _, u := range s.Units {
		answered := len(u.Questions) > 0
		for _, q := range u.Questions {
			if _, ok := s.Answers[q.ID]; !ok {
				answered = false
				break
			}
		}
		if answered {
			s.AnsweredUnits[u.ID] = true
		}
	}

	idx := rec.CurrentUnitIndex
	if entry != nil {
		idx = entry.CurrentUnitIndex
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(s.Units)-1 {
		idx = len(s.Units) - 1
	}
	s.UnitIndex = idx

	if entry != nil && entry.ElapsedSeconds > 0 {
		s.ElapsedSeconds = entry.ElapsedSeconds
	} else {
		s.ElapsedSeconds = int(rec.UpdatedAt.Sub(rec.CreatedAt).Seconds())
		if s.ElapsedSeconds < 0 {
			s.ElapsedSeconds = 0
		}
	}
}
