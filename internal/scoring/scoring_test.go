package scoring

import (
	"math"
	"testing"

	"quiz-session-service/internal/models"
)

func TestEvaluateQuestion(t *testing.T) {
	correct := []string{"A", "B"}

	tests := []struct {
		name         string
		selected     []string
		outcome      Outcome
		contribution float64
	}{
		{"exact match", []string{"A", "B"}, OutcomeCorrect, 1.0},
		{"exact match reordered", []string{"B", "A"}, OutcomeCorrect, 1.0},
		{"proper subset", []string{"A"}, OutcomePartial, 0.25},
		{"subset with wrong option", []string{"A", "C"}, OutcomeIncorrect, 0},
		{"only wrong options", []string{"C"}, OutcomeIncorrect, 0},
		{"empty selection", nil, OutcomeIncorrect, 0},
		{"duplicate ids collapse", []string{"A", "A", "B"}, OutcomeCorrect, 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome, contribution := EvaluateQuestion(correct, tc.selected)
			if outcome != tc.outcome {
				t.Errorf("expected outcome %s, got %s", tc.outcome, outcome)
			}
			if math.Abs(contribution-tc.contribution) > 1e-9 {
				t.Errorf("expected contribution %.3f, got %.3f", tc.contribution, contribution)
			}
		})
	}
}

func TestEvaluateQuestionPartialScaling(t *testing.T) {
	// Two of three correct options picked: 0.5 * 2/3.
	_, contribution := EvaluateQuestion([]string{"A", "B", "C"}, []string{"A", "B"})
	want := 0.5 * 2.0 / 3.0
	if math.Abs(contribution-want) > 1e-9 {
		t.Errorf("expected contribution %.4f, got %.4f", want, contribution)
	}
}

func question(id string, correct, wrong int) models.Question {
	q := models.Question{ID: id}
	for i := 0; i < correct; i++ {
		q.Options = append(q.Options, models.Option{ID: id + string(rune('A'+i)), IsCorrect: true})
	}
	for i := 0; i < wrong; i++ {
		q.Options = append(q.Options, models.Option{ID: id + string(rune('W'+i))})
	}
	return q
}

func TestComputeFinalGradePerfect(t *testing.T) {
	questions := []models.Question{question("q1", 2, 2), question("q2", 1, 3)}
	answers := map[string][]string{
		"q1": {"q1A", "q1B"},
		"q2": {"q2A"},
	}
	if grade := ComputeFinalGrade(questions, answers); grade != 20 {
		t.Errorf("all-correct course should grade 20, got %d", grade)
	}
}

func TestComputeFinalGradeEmptyAnswers(t *testing.T) {
	// Reachable via restore from corrupted data; must not divide by zero.
	questions := []models.Question{question("q1", 2, 2), question("q2", 1, 3)}
	answers := map[string][]string{"q1": {}, "q2": {}}
	if grade := ComputeFinalGrade(questions, answers); grade != 0 {
		t.Errorf("empty answers should grade 0, got %d", grade)
	}
}

func TestComputeFinalGradeSubtractsWrongPicks(t *testing.T) {
	// q1 has 2 correct options; one right and one wrong pick cancel out.
	questions := []models.Question{question("q1", 2, 2)}
	answers := map[string][]string{"q1": {"q1A", "q1W"}}
	if grade := ComputeFinalGrade(questions, answers); grade != 0 {
		t.Errorf("expected cancelled picks to grade 0, got %d", grade)
	}

	// Never below zero per question.
	answers = map[string][]string{"q1": {"q1W", "q1X"}}
	if grade := ComputeFinalGrade(questions, answers); grade != 0 {
		t.Errorf("expected floor at 0, got %d", grade)
	}
}

func TestComputeFinalGradeHalf(t *testing.T) {
	questions := []models.Question{question("q1", 2, 2), question("q2", 2, 2)}
	answers := map[string][]string{
		"q1": {"q1A", "q1B"},
		"q2": {},
	}
	if grade := ComputeFinalGrade(questions, answers); grade != 10 {
		t.Errorf("half the correct options should grade 10, got %d", grade)
	}
}

func TestComputeFinalGradeNoCorrectOptionsAnywhere(t *testing.T) {
	questions := []models.Question{question("q1", 0, 3), question("q2", 0, 2)}
	answers := map[string][]string{"q1": {"q1W"}}
	if grade := ComputeFinalGrade(questions, answers); grade != 0 {
		t.Errorf("zero-denominator course should grade 0, got %d", grade)
	}
}
