package engine

import (
	"quiz-session-service/internal/models"
	"quiz-session-service/internal/scoring"
)

type Phase string

const (
	PhaseNotStarted      Phase = "not_started"
	PhaseConfiguring     Phase = "configuring_settings"
	PhaseAwaitingRestore Phase = "awaiting_restore_decision"
	PhaseActive          Phase = "active"
	PhasePaused          Phase = "paused"
	PhaseCompleted       Phase = "completed"
)

// Settings are fixed per session while the learner is in the configuring
// phase and immutable once the session goes active.
type Settings struct {
	// RevealAnswers keeps a submitted unit on screen in a revealed state
	// instead of auto-advancing. Ignored in retry mode, which always
	// auto-advances.
	RevealAnswers bool `json:"reveal_answers"`
	// TimeLimitSeconds bounds the session; 0 means no time box. Expiry
	// forces completion with whatever has been answered so far.
	TimeLimitSeconds int `json:"time_limit_seconds"`
}

// State is the mutable heart of a session. All transitions go through the
// Machine; nothing outside this package mutates it.
type State struct {
	Phase    Phase                   `json:"phase"`
	Settings Settings                `json:"settings"`
	Units    []models.AnswerableUnit `json:"units"`

	UnitIndex int `json:"unit_index"`

	// Selections holds the in-progress picks for the unit currently on
	// screen; they only become Answers on submit.
	Selections map[string][]string `json:"selections"`
	// Answers maps question id to the option ids submitted as the final
	// answer. Append-only within a session except on full restart.
	Answers map[string][]string `json:"answers"`

	// Outcome sets. A question id lives in exactly one of Correct, Partial,
	// Incorrect iff it is a key in Answers.
	AnsweredUnits map[string]bool `json:"answered_units"`
	Correct       map[string]bool `json:"correct"`
	Partial       map[string]bool `json:"partial"`
	Incorrect     map[string]bool `json:"incorrect"`

	Bookmarked map[string]bool `json:"bookmarked"`

	ElapsedSeconds int     `json:"elapsed_seconds"`
	RunningScore   float64 `json:"running_score"`
	RetryMode      bool    `json:"retry_mode"`

	// Revealed is true when the current unit has been submitted and stays
	// on screen with answers shown.
	Revealed bool `json:"revealed"`

	// FinalGrade is set once, at completion.
	FinalGrade *float64 `json:"final_grade,omitempty"`
}

// QuestionOutcome is the per-question result reported back after a submit.
type QuestionOutcome struct {
	QuestionID   string          `json:"question_id"`
	Outcome      scoring.Outcome `json:"outcome"`
	Contribution float64         `json:"contribution"`
	CorrectIDs   []string        `json:"correct_option_ids"`
	Explanation  string          `json:"explanation,omitempty"`
}

// SubmitResult describes what happened on a unit submission.
type SubmitResult struct {
	UnitID       string            `json:"unit_id"`
	Outcomes     []QuestionOutcome `json:"outcomes"`
	RunningScore float64           `json:"running_score"`
	AutoAdvanced bool              `json:"auto_advanced"`
	Completed    bool              `json:"completed"`
}

func (s *State) CurrentUnit() *models.AnswerableUnit {
	if s.UnitIndex < 0 || s.UnitIndex >= len(s.Units) {
		return nil
	}
	return &s.Units[s.UnitIndex]
}

// AllQuestions flattens the unit sequence in walk order.
func (s *State) AllQuestions() []models.Question {
	var qs []models.Question
	for _, u := range s.Units {
		qs = append(qs, u.Questions...)
	}
	return qs
}

// QuestionsAnswered is the number of questions with a submitted answer.
func (s *State) QuestionsAnswered() int {
	return len(s.Answers)
}

func setToSlice(set map[string]bool, order []models.Question) []string {
	out := []string{}
	for _, q := range order {
		if set[q.ID] {
			out = append(out, q.ID)
		}
	}
	return out
}

// IncorrectIDs and PartialIDs return the outcome sets ordered by walk
// position so the persisted record stays deterministic.
func (s *State) IncorrectIDs() []string { return setToSlice(s.Incorrect, s.AllQuestions()) }
func (s *State) PartialIDs() []string   { return setToSlice(s.Partial, s.AllQuestions()) }
