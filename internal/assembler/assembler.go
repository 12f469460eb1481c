package assembler

import (
	"fmt"
	"sort"

	"quiz-session-service/internal/models"
)

// Assemble partitions a flat question list into the ordered sequence of
// answerable units the learner walks through. Case groups come first, each
// holding its member questions sorted by order hint (ties keep load order).
// Every remaining question becomes its own synthetic unit, appended after
// all case groups in load order. The output is deterministic for a fixed
// input, which resume depends on: a persisted unit index is only meaningful
// if reassembly lands on the same sequence.
func Assemble(questions []models.Question, groups []models.CaseGroup) []models.AnswerableUnit {
	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}

	// A dangling group reference degrades to a synthetic unit rather than
	// silently dropping the question.
	byGroup := make(map[string][]models.Question)
	var ungrouped []models.Question
	for _, q := range questions {
		if q.CaseGroupID != "" && known[q.CaseGroupID] {
			byGroup[q.CaseGroupID] = append(byGroup[q.CaseGroupID], q)
		} else {
			ungrouped = append(ungrouped, q)
		}
	}

	units := make([]models.AnswerableUnit, 0, len(groups)+len(ungrouped))
	for _, g := range groups {
		members := byGroup[g.ID]
		if len(members) == 0 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].OrderHint < members[j].OrderHint
		})
		units = append(units, models.AnswerableUnit{
			ID:          g.ID,
			Title:       g.Title,
			Description: g.Description,
			Questions:   members,
		})
	}

	for i, q := range ungrouped {
		units = append(units, models.AnswerableUnit{
			ID:        "single:" + q.ID,
			Title:     fmt.Sprintf("Question %d", i+1),
			Questions: []models.Question{q},
			Synthetic: true,
		})
	}

	return units
}

// QuestionIndex builds a lookup of every question across the unit sequence.
func QuestionIndex(units []models.AnswerableUnit) map[string]models.Question {
	idx := make(map[string]models.Question)
	for _, u := range units {
		for _, q := range u.Questions {
			idx[q.ID] = q
		}
	}
	return idx
}
