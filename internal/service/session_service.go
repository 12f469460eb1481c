package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/assembler"
	"quiz-session-service/internal/engine"
	"quiz-session-service/internal/event"
	"quiz-session-service/internal/models"
	syncx "quiz-session-service/internal/sync"
)

var ErrSessionNotFound = errors.New("session not found")

// ContentSource is the narrow view of the content store the engine needs.
type ContentSource interface {
	FetchQuestions(ctx context.Context, courseID, unitFilter string) ([]models.Question, error)
	FetchCaseGroups(ctx context.Context, courseID, unitFilter string) ([]models.CaseGroup, error)
}

// SessionService owns the registry of live sessions. Each live session
// serializes its own transitions with its own mutex: learner input, the
// one-second tick and the autosave loop all funnel through it, so there is
// exactly one active writer per session.
type SessionService struct {
	content   ContentSource
	store     syncx.RecordStore
	cache     syncx.FallbackCache
	publisher *event.EventPublisher
	machine   *engine.Machine

	mu       sync.Mutex
	sessions map[string]*LiveSession
}

// LiveSession is one learner's in-flight session: engine state plus the
// goroutines and syncer that serve it.
type LiveSession struct {
	Token     string
	LearnerID string
	CourseID  string

	mu            sync.Mutex
	state         *engine.State
	originalUnits []models.AnswerableUnit
	syncer        *syncx.Syncer
	timer         *engine.TimerController
	// foundRecord is held between startup resolution and the learner's
	// restore decision.
	foundRecord *models.SessionRecord
}

func NewSessionService(content ContentSource, store syncx.RecordStore, cache syncx.FallbackCache, publisher *event.EventPublisher) *SessionService {
	return &SessionService{
		content:   content,
		store:     store,
		cache:     cache,
		publisher: publisher,
		machine:   engine.NewMachine(),
		sessions:  map[string]*LiveSession{},
	}
}

func (s *SessionService) get(token string) (*LiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

// StartResult tells the caller whether the session went straight to active
// or is parked on the restore decision.
type StartResult struct {
	Token        string                `json:"token"`
	Phase        engine.Phase          `json:"phase"`
	UnitCount    int                   `json:"unit_count"`
	FoundRecord  *models.SessionRecord `json:"found_record,omitempty"`
	OfferRestore bool                  `json:"offer_restore"`
}

// StartSession loads the course content, assembles the unit sequence and
// performs startup resolution. When a non-completed record with answers
// exists the session parks in the awaiting-restore phase; otherwise it goes
// active immediately.
func (s *SessionService) StartSession(ctx context.Context, learnerID, courseID, unitFilter string, settings engine.Settings) (*StartResult, error) {
	questions, err := s.content.FetchQuestions(ctx, courseID, unitFilter)
	if err != nil {
		return nil, err
	}
	groups, err := s.content.FetchCaseGroups(ctx, courseID, unitFilter)
	if err != nil {
		return nil, err
	}
	units := assembler.Assemble(questions, groups)

	state, err := s.machine.NewState(units, settings)
	if err != nil {
		return nil, err
	}

	ls := &LiveSession{
		Token:         uuid.NewString(),
		LearnerID:     learnerID,
		CourseID:      courseID,
		state:         state,
		originalUnits: units,
		syncer:        syncx.NewSyncer(s.store, s.cache, learnerID, courseID),
	}
	ls.timer = engine.NewTimerController(func() { s.tick(ls) })

	decision, err := ls.syncer.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	result := &StartResult{Token: ls.Token, UnitCount: len(units)}
	if decision.OfferRestore {
		ls.foundRecord = decision.Record
		s.machine.AwaitRestoreDecision(state)
		result.FoundRecord = decision.Record
		result.OfferRestore = true
	} else {
		// An answerless leftover record is adopted silently.
		if err := s.machine.Activate(state); err != nil {
			return nil, err
		}
		s.begin(ls)
		s.publisher.Publish("quiz.session.started", map[string]interface{}{
			"learner_id": learnerID,
			"course_id":  courseID,
		})
	}
	result.Phase = state.Phase

	s.mu.Lock()
	s.sessions[ls.Token] = ls
	s.mu.Unlock()
	return result, nil
}

// begin starts the per-session goroutines. Caller must have moved the state
// into the active phase.
func (s *SessionService) begin(ls *LiveSession) {
	ls.timer.Start()
	ls.syncer.StartAutosave(func() (*models.SessionRecord, bool) {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if ls.state.Phase != engine.PhaseActive || ls.state.QuestionsAnswered() == 0 {
			return nil, false
		}
		return s.snapshotLocked(ls), true
	})
}

func (s *SessionService) snapshotLocked(ls *LiveSession) *models.SessionRecord {
	return syncx.Snapshot(ls.state, ls.LearnerID, ls.CourseID)
}

// tick is the timer callback; a time-limit expiry completes the session
// exactly like advancing past the last unit.
func (s *SessionService) tick(ls *LiveSession) {
	ls.mu.Lock()
	expired := s.machine.Tick(ls.state)
	var rec *models.SessionRecord
	if expired {
		rec = s.snapshotLocked(ls)
	}
	ls.mu.Unlock()

	if expired {
		s.finish(ls, rec, "time_limit")
	}
}

// finish seals the record and stops the per-session goroutines.
func (s *SessionService) finish(ls *LiveSession, rec *models.SessionRecord, reason string) {
	ls.timer.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ls.syncer.Seal(ctx, rec); err != nil {
		log.Printf("service: sealing record failed for session %s: %v", ls.Token, err)
	}
	s.publisher.Publish("quiz.session.completed", map[string]interface{}{
		"learner_id":  ls.LearnerID,
		"course_id":   ls.CourseID,
		"final_grade": rec.FinalGrade,
		"reason":      reason,
	})
}

// StateView is an immutable copy of one session's observable state, built
// under the session lock. Handlers read it after the lock is released while
// the timer and autosave goroutines keep mutating the live state, so they
// must never see the live pointer.
type StateView struct {
	Phase                engine.Phase `json:"phase"`
	UnitIndex            int          `json:"unit_index"`
	UnitCount            int          `json:"unit_count"`
	QuestionsAnswered    int          `json:"questions_answered"`
	RunningScore         float64      `json:"running_score"`
	ElapsedSeconds       int          `json:"elapsed_seconds"`
	RetryMode            bool         `json:"retry_mode"`
	IncorrectQuestionIDs []string     `json:"incorrect_question_ids"`
	PartialQuestionIDs   []string     `json:"partially_correct_question_ids"`
	BookmarkedUnitIDs    []string     `json:"bookmarked_unit_ids"`
	FinalGrade           *float64     `json:"final_grade,omitempty"`
}

// viewLocked copies the observable state. Caller holds ls.mu.
func viewLocked(st *engine.State) *StateView {
	bookmarked := []string{}
	for _, u := range st.Units {
		if st.Bookmarked[u.ID] {
			bookmarked = append(bookmarked, u.ID)
		}
	}
	var grade *float64
	if st.FinalGrade != nil {
		g := *st.FinalGrade
		grade = &g
	}
	return &StateView{
		Phase:                st.Phase,
		UnitIndex:            st.UnitIndex,
		UnitCount:            len(st.Units),
		QuestionsAnswered:    st.QuestionsAnswered(),
		RunningScore:         st.RunningScore,
		ElapsedSeconds:       st.ElapsedSeconds,
		RetryMode:            st.RetryMode,
		IncorrectQuestionIDs: st.IncorrectIDs(),
		PartialQuestionIDs:   st.PartialIDs(),
		BookmarkedUnitIDs:    bookmarked,
		FinalGrade:           grade,
	}
}

// Resume answers the restore decision with "continue where I left off".
func (s *SessionService) Resume(ctx context.Context, token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Phase != engine.PhaseAwaitingRestore || ls.foundRecord == nil {
		return nil, errors.New("session is not awaiting a restore decision")
	}
	entry, err := ls.syncer.CachedEntry(ctx)
	if err != nil {
		log.Printf("service: fallback cache read failed, restoring from remote only: %v", err)
		entry = nil
	}
	syncx.Restore(ls.state, ls.foundRecord, entry)
	ls.foundRecord = nil
	if err := s.machine.Activate(ls.state); err != nil {
		return nil, err
	}
	s.begin(ls)
	s.publisher.Publish("quiz.session.resumed", map[string]interface{}{
		"learner_id": ls.LearnerID,
		"course_id":  ls.CourseID,
	})
	return viewLocked(ls.state), nil
}

// DiscardAndRestart answers the restore decision with "start over": the old
// record is deleted before the fresh session goes active.
func (s *SessionService) DiscardAndRestart(ctx context.Context, token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Phase != engine.PhaseAwaitingRestore {
		return nil, errors.New("session is not awaiting a restore decision")
	}
	if err := ls.syncer.DeleteRecord(ctx); err != nil {
		return nil, err
	}
	ls.foundRecord = nil
	if err := s.machine.Activate(ls.state); err != nil {
		return nil, err
	}
	s.begin(ls)
	s.publisher.Publish("quiz.session.started", map[string]interface{}{
		"learner_id": ls.LearnerID,
		"course_id":  ls.CourseID,
		"restarted":  true,
	})
	return viewLocked(ls.state), nil
}

// SetSelection records the learner's in-progress picks for one question of
// the current unit.
func (s *SessionService) SetSelection(token, questionID string, optionIDs []string) error {
	ls, err := s.get(token)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return s.machine.SetSelection(ls.state, questionID, optionIDs)
}

// SubmitUnit evaluates the current unit and fires the submit-time save. The
// write is async; the learner can keep navigating before it resolves.
func (s *SessionService) SubmitUnit(token string) (*engine.SubmitResult, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	result, err := s.machine.SubmitUnit(ls.state)
	if err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	rec := s.snapshotLocked(ls)
	ls.mu.Unlock()

	if result.Completed {
		s.finish(ls, rec, "submitted")
	} else {
		ls.syncer.SaveAsync(rec)
	}
	s.publisher.Publish("quiz.session.unit_submitted", map[string]interface{}{
		"learner_id": ls.LearnerID,
		"course_id":  ls.CourseID,
		"unit_id":    result.UnitID,
	})
	return result, nil
}

// Advance moves to the next unit; past the end it completes the session.
func (s *SessionService) Advance(token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	if err := s.machine.Advance(ls.state); err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	completed := ls.state.Phase == engine.PhaseCompleted
	var rec *models.SessionRecord
	if completed {
		rec = s.snapshotLocked(ls)
	}
	view := viewLocked(ls.state)
	ls.mu.Unlock()

	if completed {
		s.finish(ls, rec, "advanced")
	}
	return view, nil
}

func (s *SessionService) Retreat(token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := s.machine.Retreat(ls.state); err != nil {
		return nil, err
	}
	return viewLocked(ls.state), nil
}

func (s *SessionService) ToggleBookmark(token string) error {
	ls, err := s.get(token)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return s.machine.ToggleBookmark(ls.state)
}

// TogglePause flips the pause flag. Entering the paused phase stops the
// tick loop and fires an immediate save attempt.
func (s *SessionService) TogglePause(token string) (bool, error) {
	ls, err := s.get(token)
	if err != nil {
		return false, err
	}
	ls.mu.Lock()
	paused, err := s.machine.TogglePause(ls.state)
	if err != nil {
		ls.mu.Unlock()
		return false, err
	}
	var rec *models.SessionRecord
	if paused {
		rec = s.snapshotLocked(ls)
	}
	ls.mu.Unlock()

	if paused {
		ls.timer.Stop()
		ls.syncer.SaveAsync(rec)
		s.publisher.Publish("quiz.session.paused", map[string]interface{}{
			"learner_id": ls.LearnerID,
			"course_id":  ls.CourseID,
		})
	} else {
		ls.timer.Start()
		s.publisher.Publish("quiz.session.resumed", map[string]interface{}{
			"learner_id": ls.LearnerID,
			"course_id":  ls.CourseID,
		})
	}
	return paused, nil
}

// StartRetry rebuilds the session over only the incorrect and partially
// correct questions. The old record is deleted first; the retry round is
// not separately resumable.
func (s *SessionService) StartRetry(ctx context.Context, token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := s.machine.StartRetry(ls.state); err != nil {
		return nil, err
	}
	if err := ls.syncer.DeleteRecord(ctx); err != nil {
		log.Printf("service: deleting record before retry failed: %v", err)
	}
	s.begin(ls)
	s.publisher.Publish("quiz.session.retry_started", map[string]interface{}{
		"learner_id": ls.LearnerID,
		"course_id":  ls.CourseID,
		"unit_count": len(ls.state.Units),
	})
	return viewLocked(ls.state), nil
}

// RestartFromScratch resets over the full original unit sequence, deleting
// any persisted record.
func (s *SessionService) RestartFromScratch(ctx context.Context, token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := ls.syncer.DeleteRecord(ctx); err != nil {
		return nil, err
	}
	if err := s.machine.RestartFromScratch(ls.state, ls.originalUnits); err != nil {
		return nil, err
	}
	s.begin(ls)
	s.publisher.Publish("quiz.session.started", map[string]interface{}{
		"learner_id": ls.LearnerID,
		"course_id":  ls.CourseID,
		"restarted":  true,
	})
	return viewLocked(ls.state), nil
}

// Flush is the visibility/teardown signal: mirror state into the local
// fallback cache synchronously and kick a best-effort remote save. Before
// the restore decision is settled the in-memory state is an empty shell
// while the record still holds the learner's saved answers, so flushing
// then would wipe real progress with nothing; skip it until the session
// has begun.
func (s *SessionService) Flush(ctx context.Context, token string) error {
	ls, err := s.get(token)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	if !begunLocked(ls.state) {
		ls.mu.Unlock()
		return nil
	}
	rec := s.snapshotLocked(ls)
	elapsed := ls.state.ElapsedSeconds
	ls.mu.Unlock()
	return ls.syncer.Flush(ctx, rec, elapsed)
}

// begunLocked reports whether the session has passed startup resolution and
// its state is authoritative over the persisted record. Caller holds ls.mu.
func begunLocked(st *engine.State) bool {
	switch st.Phase {
	case engine.PhaseNotStarted, engine.PhaseConfiguring, engine.PhaseAwaitingRestore:
		return false
	}
	return true
}

// State returns an immutable view for status/progress reads.
func (s *SessionService) State(token string) (*StateView, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return viewLocked(ls.state), nil
}

// CurrentUnit returns the unit on screen with learner-safe questions
// (answer keys stripped) unless the unit is already answered.
func (s *SessionService) CurrentUnit(token string) (*models.AnswerableUnit, error) {
	ls, err := s.get(token)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	unit := ls.state.CurrentUnit()
	if unit == nil {
		return nil, errors.New("no current unit")
	}
	out := *unit
	if !ls.state.AnsweredUnits[unit.ID] {
		out.Questions = make([]models.Question, len(unit.Questions))
		for i, q := range unit.Questions {
			out.Questions[i] = q.Sanitized()
		}
	}
	return &out, nil
}

// CompletedRecord looks up a sealed past attempt for review or retake.
// Only on explicit request, never as part of session start.
func (s *SessionService) CompletedRecord(ctx context.Context, learnerID, courseID string) (*models.SessionRecord, error) {
	return s.store.FindCompleted(ctx, learnerID, courseID)
}

// Teardown flushes and forgets a live session without completing it.
func (s *SessionService) Teardown(ctx context.Context, token string) error {
	ls, err := s.get(token)
	if err != nil {
		return err
	}
	ls.timer.Stop()
	ls.syncer.StopAutosave()

	ls.mu.Lock()
	rec := s.snapshotLocked(ls)
	elapsed := ls.state.ElapsedSeconds
	completed := ls.state.Phase == engine.PhaseCompleted
	begun := begunLocked(ls.state)
	ls.mu.Unlock()

	// A session torn down before the restore decision has nothing worth
	// writing; its empty snapshot must not overwrite the saved record.
	if begun && !completed {
		if err := ls.syncer.Flush(ctx, rec, elapsed); err != nil {
			log.Printf("service: teardown flush failed: %v", err)
		}
	}

	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}
