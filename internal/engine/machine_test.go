package engine

import (
	"errors"
	"math"
	"testing"

	"quiz-session-service/internal/models"
)

func mcq(id string, correct, wrong []string) models.Question {
	q := models.Question{ID: id}
	for _, oid := range correct {
		q.Options = append(q.Options, models.Option{ID: oid, IsCorrect: true})
	}
	for _, oid := range wrong {
		q.Options = append(q.Options, models.Option{ID: oid})
	}
	return q
}

// testUnits builds a two-unit course: a case group with two questions and a
// synthetic single-question unit.
func testUnits() []models.AnswerableUnit {
	return []models.AnswerableUnit{
		{
			ID:    "g1",
			Title: "Case 1",
			Questions: []models.Question{
				mcq("q1", []string{"q1A", "q1B"}, []string{"q1C"}),
				mcq("q2", []string{"q2A"}, []string{"q2B"}),
			},
		},
		{
			ID:        "single:q3",
			Title:     "Question 1",
			Questions: []models.Question{mcq("q3", []string{"q3A"}, []string{"q3B"})},
			Synthetic: true,
		},
	}
}

func activeState(t *testing.T, settings Settings) (*Machine, *State) {
	t.Helper()
	m := NewMachine()
	s, err := m.NewState(testUnits(), settings)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if err := m.Activate(s); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return m, s
}

func TestNewStateRejectsEmptyCourse(t *testing.T) {
	m := NewMachine()
	if _, err := m.NewState(nil, Settings{}); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestSubmitBlockedUntilEveryQuestionSelected(t *testing.T) {
	m, s := activeState(t, Settings{})
	if err := m.SetSelection(s, "q1", []string{"q1A", "q1B"}); err != nil {
		t.Fatalf("SetSelection: %v", err)
	}
	// q2 still unselected.
	if _, err := m.SubmitUnit(s); !errors.Is(err, ErrIncompleteSelection) {
		t.Fatalf("expected ErrIncompleteSelection, got %v", err)
	}
}

func TestSubmitUnitScoresAndAdvances(t *testing.T) {
	m, s := activeState(t, Settings{})
	mustSelect(t, m, s, "q1", "q1A", "q1B") // correct, 1.0
	mustSelect(t, m, s, "q2", "q2B")        // incorrect, 0

	result, err := m.SubmitUnit(s)
	if err != nil {
		t.Fatalf("SubmitUnit: %v", err)
	}
	if !result.AutoAdvanced {
		t.Error("without reveal setting the machine should auto-advance")
	}
	if s.UnitIndex != 1 {
		t.Errorf("expected unit index 1, got %d", s.UnitIndex)
	}
	if math.Abs(s.RunningScore-1.0) > 1e-9 {
		t.Errorf("expected running score 1.0, got %.3f", s.RunningScore)
	}
	if !s.Correct["q1"] || !s.Incorrect["q2"] {
		t.Errorf("outcome sets wrong: correct=%v incorrect=%v", s.Correct, s.Incorrect)
	}
	if !s.AnsweredUnits["g1"] {
		t.Error("unit g1 should be marked answered")
	}
}

func TestSubmitUnitRevealKeepsUnitOnScreen(t *testing.T) {
	m, s := activeState(t, Settings{RevealAnswers: true})
	mustSelect(t, m, s, "q1", "q1A", "q1B")
	mustSelect(t, m, s, "q2", "q2A")

	result, err := m.SubmitUnit(s)
	if err != nil {
		t.Fatalf("SubmitUnit: %v", err)
	}
	if result.AutoAdvanced {
		t.Error("reveal setting should keep the unit on screen")
	}
	if !s.Revealed || s.UnitIndex != 0 {
		t.Errorf("expected revealed at index 0, got revealed=%v index=%d", s.Revealed, s.UnitIndex)
	}
}

func TestOutcomeSetsStayDisjoint(t *testing.T) {
	m, s := activeState(t, Settings{})
	mustSelect(t, m, s, "q1", "q1A") // partial
	mustSelect(t, m, s, "q2", "q2A") // correct
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("SubmitUnit: %v", err)
	}

	for _, qid := range []string{"q1", "q2"} {
		n := 0
		for _, set := range []map[string]bool{s.Correct, s.Partial, s.Incorrect} {
			if set[qid] {
				n++
			}
		}
		if n != 1 {
			t.Errorf("question %s should be in exactly one outcome set, found in %d", qid, n)
		}
		if _, ok := s.Answers[qid]; !ok {
			t.Errorf("question %s should be a key in answers", qid)
		}
	}
}

func TestRunningScoreNeverRescored(t *testing.T) {
	m, s := activeState(t, Settings{})
	mustSelect(t, m, s, "q1", "q1A") // partial: 0.25
	mustSelect(t, m, s, "q2", "q2A") // correct: 1.0
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 1: %v", err)
	}
	after1 := s.RunningScore

	mustSelect(t, m, s, "q3", "q3A") // correct: 1.0
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 2: %v", err)
	}

	if s.RunningScore < after1 {
		t.Errorf("running score decreased: %.3f -> %.3f", after1, s.RunningScore)
	}
	want := 0.25 + 1.0 + 1.0
	if math.Abs(s.RunningScore-want) > 1e-9 {
		t.Errorf("expected exact sum %.3f, got %.3f", want, s.RunningScore)
	}
}

func TestRetreatNoOpAtZero(t *testing.T) {
	m, s := activeState(t, Settings{})
	if err := m.Retreat(s); err != nil {
		t.Fatalf("Retreat: %v", err)
	}
	if s.UnitIndex != 0 {
		t.Errorf("retreat at index 0 should stay put, got %d", s.UnitIndex)
	}
}

func TestAdvancePastLastUnitCompletes(t *testing.T) {
	m, s := activeState(t, Settings{RevealAnswers: true})
	mustSelect(t, m, s, "q1", "q1A", "q1B")
	mustSelect(t, m, s, "q2", "q2A")
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 1: %v", err)
	}
	if err := m.Advance(s); err != nil {
		t.Fatalf("advance: %v", err)
	}
	mustSelect(t, m, s, "q3", "q3A")
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 2: %v", err)
	}

	if err := m.Advance(s); err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if s.Phase != PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", s.Phase)
	}
	if s.FinalGrade == nil {
		t.Fatal("final grade should be set at completion")
	}
	// Every correct option picked, nothing wrong: full marks.
	if *s.FinalGrade != 20 {
		t.Errorf("expected grade 20, got %.1f", *s.FinalGrade)
	}
}

func TestTickOnlyCountsWhileActive(t *testing.T) {
	m, s := activeState(t, Settings{})
	m.Tick(s)
	m.Tick(s)
	if s.ElapsedSeconds != 2 {
		t.Fatalf("expected 2 elapsed seconds, got %d", s.ElapsedSeconds)
	}

	if _, err := m.TogglePause(s); err != nil {
		t.Fatalf("pause: %v", err)
	}
	m.Tick(s)
	if s.ElapsedSeconds != 2 {
		t.Errorf("paused session should freeze the clock, got %d", s.ElapsedSeconds)
	}

	if _, err := m.TogglePause(s); err != nil {
		t.Fatalf("resume: %v", err)
	}
	m.Tick(s)
	if s.ElapsedSeconds != 3 {
		t.Errorf("resumed session should count again, got %d", s.ElapsedSeconds)
	}
}

func TestTimeLimitExpiryCompletes(t *testing.T) {
	m, s := activeState(t, Settings{TimeLimitSeconds: 2})
	mustSelect(t, m, s, "q1", "q1A", "q1B")
	mustSelect(t, m, s, "q2", "q2A")
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("SubmitUnit: %v", err)
	}

	if expired := m.Tick(s); expired {
		t.Fatal("first tick should not expire")
	}
	if expired := m.Tick(s); !expired {
		t.Fatal("second tick should expire the time box")
	}
	if s.Phase != PhaseCompleted {
		t.Fatalf("expiry should complete the session, got %s", s.Phase)
	}
	if s.FinalGrade == nil {
		t.Fatal("expiry should grade whatever was answered")
	}
	m.Tick(s)
	if s.ElapsedSeconds != 2 {
		t.Errorf("completed session should freeze the clock, got %d", s.ElapsedSeconds)
	}
}

func TestToggleBookmarkIsAdvisory(t *testing.T) {
	m, s := activeState(t, Settings{})
	if err := m.ToggleBookmark(s); err != nil {
		t.Fatalf("ToggleBookmark: %v", err)
	}
	if !s.Bookmarked["g1"] {
		t.Error("current unit should be bookmarked")
	}
	if s.RunningScore != 0 {
		t.Error("bookmarking must never affect scoring")
	}
	if err := m.ToggleBookmark(s); err != nil {
		t.Fatalf("ToggleBookmark: %v", err)
	}
	if s.Bookmarked["g1"] {
		t.Error("second toggle should clear the bookmark")
	}
}

func TestStartRetryResetsOntoWrongQuestions(t *testing.T) {
	m, s := activeState(t, Settings{RevealAnswers: true})
	mustSelect(t, m, s, "q1", "q1A") // partial
	mustSelect(t, m, s, "q2", "q2A") // correct
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 1: %v", err)
	}
	if err := m.Advance(s); err != nil {
		t.Fatalf("advance: %v", err)
	}
	mustSelect(t, m, s, "q3", "q3B") // incorrect
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("submit unit 2: %v", err)
	}
	if err := m.Advance(s); err != nil {
		t.Fatalf("final advance: %v", err)
	}

	if err := m.StartRetry(s); err != nil {
		t.Fatalf("StartRetry: %v", err)
	}
	if !s.RetryMode {
		t.Error("retry mode flag should be set")
	}
	if s.Phase != PhaseActive || s.UnitIndex != 0 {
		t.Errorf("retry should restart active at index 0, got %s/%d", s.Phase, s.UnitIndex)
	}
	if len(s.Answers) != 0 || s.RunningScore != 0 || s.ElapsedSeconds != 0 {
		t.Error("retry should reset answers, score and elapsed time")
	}
	if len(s.Units) != 2 {
		t.Fatalf("expected 2 retry units (q1 partial, q3 incorrect), got %d", len(s.Units))
	}
	if s.Units[0].QuestionIDs()[0] != "q1" || s.Units[1].QuestionIDs()[0] != "q3" {
		t.Errorf("retry units should hold q1 and q3, got %v and %v",
			s.Units[0].QuestionIDs(), s.Units[1].QuestionIDs())
	}

	// Retry submissions auto-advance even with the reveal setting on.
	mustSelect(t, m, s, "q1", "q1A", "q1B")
	result, err := m.SubmitUnit(s)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if !result.AutoAdvanced {
		t.Error("retry mode should always auto-advance")
	}
}

func TestStartRetryWithNothingWrong(t *testing.T) {
	m, s := activeState(t, Settings{})
	if err := m.StartRetry(s); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry, got %v", err)
	}
}

func TestRestartFromScratch(t *testing.T) {
	m, s := activeState(t, Settings{})
	original := testUnits()
	mustSelect(t, m, s, "q1", "q1A", "q1B")
	mustSelect(t, m, s, "q2", "q2A")
	if _, err := m.SubmitUnit(s); err != nil {
		t.Fatalf("SubmitUnit: %v", err)
	}
	m.Tick(s)

	if err := m.RestartFromScratch(s, original); err != nil {
		t.Fatalf("RestartFromScratch: %v", err)
	}
	if s.RetryMode {
		t.Error("full restart must not set retry mode")
	}
	if len(s.Units) != 2 || len(s.Answers) != 0 || s.ElapsedSeconds != 0 || s.RunningScore != 0 {
		t.Error("restart should reset onto the full original unit set")
	}
}

func mustSelect(t *testing.T, m *Machine, s *State, questionID string, optionIDs ...string) {
	t.Helper()
	if err := m.SetSelection(s, questionID, optionIDs); err != nil {
		t.Fatalf("SetSelection(%s): %v", questionID, err)
	}
}
