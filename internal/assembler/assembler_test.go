package assembler

import (
	"reflect"
	"testing"

	"quiz-session-service/internal/models"
)

func q(id, group string, hint int) models.Question {
	return models.Question{ID: id, CaseGroupID: group, OrderHint: hint}
}

func TestAssembleOrdering(t *testing.T) {
	questions := []models.Question{
		q("q1", "", 0),
		q("q2", "g1", 2),
		q("q3", "g1", 1),
		q("q4", "", 0),
		q("q5", "g2", 1),
	}
	groups := []models.CaseGroup{
		{ID: "g1", Title: "Cardiology case"},
		{ID: "g2", Title: "Renal case"},
	}

	units := Assemble(questions, groups)

	if len(units) != 4 {
		t.Fatalf("expected 4 units, got %d", len(units))
	}

	// Case groups first, members sorted by order hint.
	if units[0].ID != "g1" || units[1].ID != "g2" {
		t.Errorf("case groups should lead the sequence, got %q, %q", units[0].ID, units[1].ID)
	}
	if got := units[0].QuestionIDs(); !reflect.DeepEqual(got, []string{"q3", "q2"}) {
		t.Errorf("g1 members should sort by order hint, got %v", got)
	}

	// Ungrouped questions follow in load order as synthetic units.
	if units[2].QuestionIDs()[0] != "q1" || units[3].QuestionIDs()[0] != "q4" {
		t.Errorf("synthetic units out of load order: %v, %v", units[2].QuestionIDs(), units[3].QuestionIDs())
	}
	if !units[2].Synthetic || !units[3].Synthetic {
		t.Error("ungrouped questions should produce synthetic units")
	}
}

func TestAssembleSyntheticTitles(t *testing.T) {
	// Titles number the synthetic sequence, not the overall unit sequence.
	questions := []models.Question{
		q("q1", "g1", 1),
		q("q2", "", 0),
		q("q3", "", 0),
	}
	groups := []models.CaseGroup{{ID: "g1"}}

	units := Assemble(questions, groups)
	if units[1].Title != "Question 1" {
		t.Errorf("expected first synthetic title %q, got %q", "Question 1", units[1].Title)
	}
	if units[2].Title != "Question 2" {
		t.Errorf("expected second synthetic title %q, got %q", "Question 2", units[2].Title)
	}
}

func TestAssembleOrderHintTieKeepsLoadOrder(t *testing.T) {
	questions := []models.Question{
		q("qa", "g1", 5),
		q("qb", "g1", 5),
		q("qc", "g1", 5),
	}
	units := Assemble(questions, []models.CaseGroup{{ID: "g1"}})
	if got := units[0].QuestionIDs(); !reflect.DeepEqual(got, []string{"qa", "qb", "qc"}) {
		t.Errorf("tied order hints should keep load order, got %v", got)
	}
}

func TestAssembleDanglingGroupReference(t *testing.T) {
	questions := []models.Question{q("q1", "missing", 0)}
	units := Assemble(questions, nil)
	if len(units) != 1 || !units[0].Synthetic {
		t.Fatalf("question with unknown group should fall back to a synthetic unit, got %+v", units)
	}
}

func TestAssembleEmptyGroupDropped(t *testing.T) {
	units := Assemble([]models.Question{q("q1", "", 0)}, []models.CaseGroup{{ID: "empty"}})
	if len(units) != 1 {
		t.Fatalf("memberless case group should be dropped, got %d units", len(units))
	}
}

func TestAssembleDeterminism(t *testing.T) {
	questions := []models.Question{
		q("q1", "", 3),
		q("q2", "g1", 2),
		q("q3", "g1", 2),
		q("q4", "g2", 9),
		q("q5", "", 1),
	}
	groups := []models.CaseGroup{{ID: "g1"}, {ID: "g2"}}

	first := Assemble(questions, groups)
	for i := 0; i < 50; i++ {
		again := Assemble(questions, groups)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("assembly is not deterministic on run %d", i)
		}
	}
}
