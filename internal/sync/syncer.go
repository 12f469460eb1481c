package syncx

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"quiz-session-service/internal/engine"
	"quiz-session-service/internal/models"
)

var (
	// ErrDuplicateActive is returned by a RecordStore when creating a
	// record collides with the one-active-record-per-(learner,course)
	// constraint.
	ErrDuplicateActive = errors.New("an active record already exists for this learner and course")
	// ErrSealed is returned on any attempt to update a completed record.
	ErrSealed = errors.New("record is sealed")
)

// RecordStore is the remote persistence surface for session records.
type RecordStore interface {
	// FindActive returns the single non-completed record for the pair, or
	// (nil, nil) when there is none.
	FindActive(ctx context.Context, learnerID, courseID string) (*models.SessionRecord, error)
	// FindCompleted returns the most recent sealed record, or (nil, nil).
	FindCompleted(ctx context.Context, learnerID, courseID string) (*models.SessionRecord, error)
	// Create inserts a new record and returns its id. Must return
	// ErrDuplicateActive when a non-completed record already exists.
	Create(ctx context.Context, rec *models.SessionRecord) (string, error)
	// Update overwrites the record snapshot. Must return ErrSealed for a
	// completed record.
	Update(ctx context.Context, id string, rec *models.SessionRecord) error
	Delete(ctx context.Context, id string) error
}

// FallbackCache is the local write-ahead store mirroring flush-time state.
type FallbackCache interface {
	Put(ctx context.Context, entry *models.CacheEntry) error
	Get(ctx context.Context, recordID string) (*models.CacheEntry, error)
	Delete(ctx context.Context, recordID string) error
}

// Syncer reconciles one session's in-memory state with the remote record
// and the local fallback cache. The first successful write establishes the
// record id; a duplicate-key collision on create (e.g. a second tab racing
// session start) is recovered by re-querying for the existing record and
// retrying as an update, never surfaced to the learner.
type Syncer struct {
	store     RecordStore
	cache     FallbackCache
	learnerID string
	courseID  string

	mu       sync.Mutex
	recordID string

	// writeMu serializes whole remote writes so two concurrent saves cannot
	// both observe an empty record id and double-create.
	writeMu sync.Mutex

	autosaveEvery time.Duration
	stopAutosave  chan struct{}
}

func NewSyncer(store RecordStore, cache FallbackCache, learnerID, courseID string) *Syncer {
	return &Syncer{
		store:         store,
		cache:         cache,
		learnerID:     learnerID,
		courseID:      courseID,
		autosaveEvery: 30 * time.Second,
	}
}

// RecordID reports the id established by the first successful write; empty
// until then.
func (sy *Syncer) RecordID() string {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.recordID
}

func (sy *Syncer) setRecordID(id string) {
	sy.mu.Lock()
	sy.recordID = id
	sy.mu.Unlock()
}

// StartDecision is the outcome of startup resolution.
type StartDecision struct {
	// Record is the found non-completed record, nil when starting fresh.
	Record *models.SessionRecord
	// OfferRestore is true when the record has at least one recorded
	// answer and the learner must choose between resume and restart.
	OfferRestore bool
}

// Resolve performs startup resolution: look for a non-completed record for
// the pair and decide whether a restore decision is needed. A record with
// no answers is adopted silently (its id is reused) without bothering the
// learner.
func (sy *Syncer) Resolve(ctx context.Context) (*StartDecision, error) {
	rec, err := sy.store.FindActive(ctx, sy.learnerID, sy.courseID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &StartDecision{}, nil
	}
	sy.setRecordID(rec.ID)
	return &StartDecision{Record: rec, OfferRestore: len(rec.Answers) > 0}, nil
}

// FindCompleted looks up a sealed record for review or retake. Never
// auto-triggered; only on explicit request.
func (sy *Syncer) FindCompleted(ctx context.Context) (*models.SessionRecord, error) {
	return sy.store.FindCompleted(ctx, sy.learnerID, sy.courseID)
}

// Save writes the snapshot, establishing or reusing the record id and
// recovering from a concurrent-create conflict.
func (sy *Syncer) Save(ctx context.Context, rec *models.SessionRecord) error {
	sy.writeMu.Lock()
	defer sy.writeMu.Unlock()
	id := sy.RecordID()
	if id == "" {
		newID, err := sy.store.Create(ctx, rec)
		if err == nil {
			sy.setRecordID(newID)
			return nil
		}
		if !errors.Is(err, ErrDuplicateActive) {
			return err
		}
		// A duplicate tab created the record first; adopt its id.
		existing, findErr := sy.store.FindActive(ctx, sy.learnerID, sy.courseID)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			return err
		}
		id = existing.ID
		sy.setRecordID(id)
	}
	return sy.store.Update(ctx, id, rec)
}

// SaveAsync fires a best-effort save without blocking the caller. The
// snapshot is complete state, so a late older write is superseded by any
// later one; failures are logged and healed by the next autosave.
func (sy *Syncer) SaveAsync(rec *models.SessionRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sy.Save(ctx, rec); err != nil && !errors.Is(err, ErrSealed) {
			log.Printf("sync: background save failed (will retry on autosave): %v", err)
		}
	}()
}

// Flush is the teardown/visibility-change path: mirror the snapshot into
// the local fallback cache synchronously, then attempt the remote save
// best-effort. The cache write is the one that must not be skipped, since
// the remote write races process teardown.
func (sy *Syncer) Flush(ctx context.Context, rec *models.SessionRecord, elapsedSeconds int) error {
	if id := sy.RecordID(); id != "" {
		entry := &models.CacheEntry{
			RecordID:          id,
			ElapsedSeconds:    elapsedSeconds,
			Answers:           rec.Answers,
			RunningScore:      rec.RunningScore,
			QuestionsAnswered: rec.QuestionsAnswered,
			CurrentUnitIndex:  rec.CurrentUnitIndex,
			UpdatedAt:         time.Now(),
		}
		if err := sy.cache.Put(ctx, entry); err != nil {
			log.Printf("sync: fallback cache write failed: %v", err)
		}
	}
	sy.SaveAsync(rec)
	return nil
}

// Seal writes the final snapshot with completed=true and the final grade,
// then clears the fallback cache entries for the record. A sealed record is
// never touched again by autosave.
func (sy *Syncer) Seal(ctx context.Context, rec *models.SessionRecord) error {
	rec.IsCompleted = true
	if err := sy.Save(ctx, rec); err != nil {
		return err
	}
	sy.StopAutosave()
	if id := sy.RecordID(); id != "" {
		if err := sy.cache.Delete(ctx, id); err != nil {
			log.Printf("sync: fallback cache clear failed: %v", err)
		}
	}
	return nil
}

// DeleteRecord removes the persisted record and its cache entry; used when
// the learner explicitly restarts from scratch or enters retry mode.
func (sy *Syncer) DeleteRecord(ctx context.Context) error {
	id := sy.RecordID()
	if id == "" {
		return nil
	}
	if err := sy.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := sy.cache.Delete(ctx, id); err != nil {
		log.Printf("sync: fallback cache clear failed: %v", err)
	}
	sy.setRecordID("")
	return nil
}

// CachedEntry fetches the local fallback entry for the current record, if
// any.
func (sy *Syncer) CachedEntry(ctx context.Context) (*models.CacheEntry, error) {
	id := sy.RecordID()
	if id == "" {
		return nil, nil
	}
	return sy.cache.Get(ctx, id)
}

// StartAutosave begins the periodic save loop. snapshot must return the
// current full state under the session's lock, or ok=false to skip a round
// (not active yet, nothing answered, or already sealed). Independent of the
// one-second tick by design.
func (sy *Syncer) StartAutosave(snapshot func() (rec *models.SessionRecord, ok bool)) {
	sy.mu.Lock()
	if sy.stopAutosave != nil {
		sy.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	sy.stopAutosave = stop
	sy.mu.Unlock()

	go func() {
		ticker := time.NewTicker(sy.autosaveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rec, ok := snapshot()
				if !ok {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				err := sy.Save(ctx, rec)
				cancel()
				if err != nil && !errors.Is(err, ErrSealed) {
					log.Printf("sync: autosave failed (will retry): %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopAutosave halts the periodic loop. Idempotent.
func (sy *Syncer) StopAutosave() {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.stopAutosave != nil {
		close(sy.stopAutosave)
		sy.stopAutosave = nil
	}
}

// Snapshot projects the engine state into the persisted record shape.
func Snapshot(s *engine.State, learnerID, courseID string) *models.SessionRecord {
	answers := make(map[string][]string, len(s.Answers))
	for qid, sel := range s.Answers {
		answers[qid] = append([]string(nil), sel...)
	}
	return &models.SessionRecord{
		LearnerID:                   learnerID,
		CourseID:                    courseID,
		CurrentUnitIndex:            s.UnitIndex,
		Answers:                     answers,
		RunningScore:                s.RunningScore,
		QuestionsAnswered:           s.QuestionsAnswered(),
		IncorrectQuestionIDs:        s.IncorrectIDs(),
		PartiallyCorrectQuestionIDs: s.PartialIDs(),
		IsCompleted:                 s.Phase == engine.PhaseCompleted,
		FinalGrade:                  s.FinalGrade,
	}
}
