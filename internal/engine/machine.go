package engine

import (
	"errors"
	"fmt"

	"quiz-session-service/internal/models"
	"quiz-session-service/internal/scoring"
	"quiz-session-service/internal/selection"
)

var (
	// ErrNoContent signals a course with no answerable units; the caller
	// must not start an empty session.
	ErrNoContent = errors.New("no answerable units for this course")
	// ErrIncompleteSelection blocks a submit while any question in the
	// current unit has an empty selection.
	ErrIncompleteSelection = errors.New("every question in the unit needs a selection before submit")
	// ErrNothingToRetry signals that no question is incorrect or partial.
	ErrNothingToRetry = selection.ErrNothingToRetry
	// ErrCompleted guards transitions that are invalid on a finished session.
	ErrCompleted = errors.New("session already completed")
	// ErrNotActive guards learner input outside the active phase.
	ErrNotActive = errors.New("session is not active")
)

// Machine owns the transition rules over State. It holds no mutable state of
// its own, so one Machine can drive any number of sessions.
type Machine struct{}

func NewMachine() *Machine { return &Machine{} }

// NewState builds a fresh session over the assembled unit sequence. The
// session starts in the configuring phase; Activate moves it on once the
// restore decision (if any) is settled.
func (m *Machine) NewState(units []models.AnswerableUnit, settings Settings) (*State, error) {
	if len(units) == 0 {
		return nil, ErrNoContent
	}
	return &State{
		Phase:         PhaseConfiguring,
		Settings:      settings,
		Units:         units,
		Selections:    map[string][]string{},
		Answers:       map[string][]string{},
		AnsweredUnits: map[string]bool{},
		Correct:       map[string]bool{},
		Partial:       map[string]bool{},
		Incorrect:     map[string]bool{},
		Bookmarked:    map[string]bool{},
	}, nil
}

// AwaitRestoreDecision parks the session until the learner chooses between
// resuming the found record and starting over.
func (m *Machine) AwaitRestoreDecision(s *State) {
	s.Phase = PhaseAwaitingRestore
}

// Activate moves a configuring or awaiting-restore session into the active
// phase.
func (m *Machine) Activate(s *State) error {
	switch s.Phase {
	case PhaseConfiguring, PhaseAwaitingRestore:
		s.Phase = PhaseActive
		return nil
	case PhaseActive:
		return nil
	default:
		return fmt.Errorf("cannot activate from phase %q", s.Phase)
	}
}

// SetSelection replaces the transient selection for one question of the
// current unit. An empty slice clears it.
func (m *Machine) SetSelection(s *State, questionID string, optionIDs []string) error {
	if s.Phase != PhaseActive {
		return ErrNotActive
	}
	unit := s.CurrentUnit()
	if unit == nil {
		return fmt.Errorf("no current unit")
	}
	found := false
	for i := range unit.Questions {
		if unit.Questions[i].ID == questionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("question %s is not part of the current unit", questionID)
	}
	if s.AnsweredUnits[unit.ID] {
		return fmt.Errorf("unit %s already answered", unit.ID)
	}
	if len(optionIDs) == 0 {
		delete(s.Selections, questionID)
		return nil
	}
	s.Selections[questionID] = append([]string(nil), optionIDs...)
	return nil
}

// SubmitUnit evaluates every question of the current unit, folds the results
// into the outcome sets and the running score, and marks the unit answered.
// Outside retry mode, a session configured to reveal answers stays on the
// unit; otherwise (and always in retry mode) the machine auto-advances.
func (m *Machine) SubmitUnit(s *State) (*SubmitResult, error) {
	if s.Phase != PhaseActive {
		return nil, ErrNotActive
	}
	unit := s.CurrentUnit()
	if unit == nil {
		return nil, fmt.Errorf("no current unit")
	}
	if s.AnsweredUnits[unit.ID] {
		return nil, fmt.Errorf("unit %s already answered", unit.ID)
	}
	for i := range unit.Questions {
		if len(s.Selections[unit.Questions[i].ID]) == 0 {
			return nil, ErrIncompleteSelection
		}
	}

	result := &SubmitResult{UnitID: unit.ID}
	for i := range unit.Questions {
		q := &unit.Questions[i]
		selected := s.Selections[q.ID]
		correct := q.CorrectOptionIDs()
		outcome, contribution := scoring.EvaluateQuestion(correct, selected)

		// A restore that skipped a malformed sibling answer can leave a
		// unit resubmittable with some questions already answered; back
		// out the old contribution so the new one replaces it instead of
		// stacking.
		if prev, ok := s.Answers[q.ID]; ok {
			_, prevContribution := scoring.EvaluateQuestion(correct, prev)
			s.RunningScore -= prevContribution
		}

		s.Answers[q.ID] = append([]string(nil), selected...)
		delete(s.Selections, q.ID)
		m.setOutcome(s, q.ID, outcome)
		s.RunningScore += contribution

		result.Outcomes = append(result.Outcomes, QuestionOutcome{
			QuestionID:   q.ID,
			Outcome:      outcome,
			Contribution: contribution,
			CorrectIDs:   correct,
			Explanation:  q.Explanation,
		})
	}
	s.AnsweredUnits[unit.ID] = true
	result.RunningScore = s.RunningScore

	if s.RetryMode || !s.Settings.RevealAnswers {
		if err := m.Advance(s); err != nil {
			return nil, err
		}
		result.AutoAdvanced = true
	} else {
		s.Revealed = true
	}
	result.Completed = s.Phase == PhaseCompleted
	return result, nil
}

// setOutcome keeps the three outcome sets disjoint by construction.
func (m *Machine) setOutcome(s *State, questionID string, outcome scoring.Outcome) {
	delete(s.Correct, questionID)
	delete(s.Partial, questionID)
	delete(s.Incorrect, questionID)
	switch outcome {
	case scoring.OutcomeCorrect:
		s.Correct[questionID] = true
	case scoring.OutcomePartial:
		s.Partial[questionID] = true
	default:
		s.Incorrect[questionID] = true
	}
}

// Advance moves to the next unit; past the last unit the session completes
// and the final grade is computed.
func (m *Machine) Advance(s *State) error {
	if s.Phase != PhaseActive {
		return ErrNotActive
	}
	s.Revealed = false
	if s.UnitIndex >= len(s.Units)-1 {
		m.complete(s)
		return nil
	}
	s.UnitIndex++
	return nil
}

// Retreat moves back one unit; a no-op at index 0.
func (m *Machine) Retreat(s *State) error {
	if s.Phase != PhaseActive {
		return ErrNotActive
	}
	if s.UnitIndex > 0 {
		s.UnitIndex--
		s.Revealed = s.AnsweredUnits[s.Units[s.UnitIndex].ID]
	}
	return nil
}

// ToggleBookmark flips the advisory bookmark on the current unit. It never
// affects scoring.
func (m *Machine) ToggleBookmark(s *State) error {
	unit := s.CurrentUnit()
	if unit == nil {
		return fmt.Errorf("no current unit")
	}
	if s.Bookmarked[unit.ID] {
		delete(s.Bookmarked, unit.ID)
	} else {
		s.Bookmarked[unit.ID] = true
	}
	return nil
}

// TogglePause flips between the active and paused phases. The caller is
// expected to attempt a save when entering the paused phase.
func (m *Machine) TogglePause(s *State) (paused bool, err error) {
	switch s.Phase {
	case PhaseActive:
		s.Phase = PhasePaused
		return true, nil
	case PhasePaused:
		s.Phase = PhaseActive
		return false, nil
	default:
		return false, fmt.Errorf("cannot toggle pause from phase %q", s.Phase)
	}
}

// Tick advances elapsed time by one second. It only counts while active, so
// pausing and completion freeze the clock. A configured time limit forces
// completion once reached; expired reports that transition.
func (m *Machine) Tick(s *State) (expired bool) {
	if s.Phase != PhaseActive {
		return false
	}
	s.ElapsedSeconds++
	if s.Settings.TimeLimitSeconds > 0 && s.ElapsedSeconds >= s.Settings.TimeLimitSeconds {
		m.complete(s)
		return true
	}
	return false
}

// complete seals the in-memory session: the grade is computed from whatever
// has been answered and the phase becomes terminal.
func (m *Machine) complete(s *State) {
	if s.Phase == PhaseCompleted {
		return
	}
	grade := float64(scoring.ComputeFinalGrade(s.AllQuestions(), s.Answers))
	s.FinalGrade = &grade
	s.Phase = PhaseCompleted
	s.Revealed = false
}

// ForceComplete ends the session immediately, grading whatever has been
// answered so far. Used for time-limit expiry signalled externally and for
// an explicit finish request.
func (m *Machine) ForceComplete(s *State) error {
	if s.Phase == PhaseCompleted {
		return ErrCompleted
	}
	m.complete(s)
	return nil
}

// StartRetry rebuilds the session over only the previously incorrect or
// partially correct questions and resets all transient state. The retry
// round itself is not separately resumable, so the caller must delete any
// persisted record first.
func (m *Machine) StartRetry(s *State) error {
	retryUnits, err := selection.SelectIncorrect(s.Units, s.Incorrect, s.Partial)
	if err != nil {
		return err
	}
	m.reset(s, retryUnits)
	s.RetryMode = true
	return nil
}

// RestartFromScratch resets the session over the full original unit
// sequence.
func (m *Machine) RestartFromScratch(s *State, originalUnits []models.AnswerableUnit) error {
	if len(originalUnits) == 0 {
		return ErrNoContent
	}
	m.reset(s, originalUnits)
	return nil
}

func (m *Machine) reset(s *State, units []models.AnswerableUnit) {
	s.Units = units
	s.UnitIndex = 0
	s.Selections = map[string][]string{}
	s.Answers = map[string][]string{}
	s.AnsweredUnits = map[string]bool{}
	s.Correct = map[string]bool{}
	s.Partial = map[string]bool{}
	s.Incorrect = map[string]bool{}
	s.Bookmarked = map[string]bool{}
	s.ElapsedSeconds = 0
	s.RunningScore = 0
	s.RetryMode = false
	s.Revealed = false
	s.FinalGrade = nil
	s.Phase = PhaseActive
}
