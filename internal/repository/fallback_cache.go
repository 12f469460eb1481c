package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"quiz-session-service/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteCache is the local fallback store for flush-time snapshots. It is a
// plain file next to the service, written synchronously on the teardown
// path, so a crash between a flush and the remote save still leaves a
// recoverable copy. Entries live only as long as their record: sealing or
// an explicit restart clears them.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	c := &SQLiteCache{db: db}
	if err := c.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fallback_entries (
			record_id TEXT PRIMARY KEY,
			elapsed_seconds INTEGER NOT NULL,
			answers_json TEXT NOT NULL,
			running_score REAL NOT NULL,
			questions_answered INTEGER NOT NULL,
			current_unit_index INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`)
	return err
}

func (c *SQLiteCache) Put(ctx context.Context, entry *models.CacheEntry) error {
	answers, err := json.Marshal(entry.Answers)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO fallback_entries
			(record_id, elapsed_seconds, answers_json, running_score,
			 questions_answered, current_unit_index, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			elapsed_seconds = excluded.elapsed_seconds,
			answers_json = excluded.answers_json,
			running_score = excluded.running_score,
			questions_answered = excluded.questions_answered,
			current_unit_index = excluded.current_unit_index,
			updated_at_unix = excluded.updated_at_unix`,
		entry.RecordID, entry.ElapsedSeconds, string(answers), entry.RunningScore,
		entry.QuestionsAnswered, entry.CurrentUnitIndex, time.Now().Unix())
	return err
}

func (c *SQLiteCache) Get(ctx context.Context, recordID string) (*models.CacheEntry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT record_id, elapsed_seconds, answers_json, running_score,
		       questions_answered, current_unit_index, updated_at_unix
		FROM fallback_entries WHERE record_id = ?`, recordID)

	var entry models.CacheEntry
	var answersJSON string
	var updatedAtUnix int64
	err := row.Scan(&entry.RecordID, &entry.ElapsedSeconds, &answersJSON,
		&entry.RunningScore, &entry.QuestionsAnswered, &entry.CurrentUnitIndex,
		&updatedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answersJSON), &entry.Answers); err != nil {
		return nil, err
	}
	entry.UpdatedAt = time.Unix(updatedAtUnix, 0)
	return &entry, nil
}

func (c *SQLiteCache) Delete(ctx context.Context, recordID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM fallback_entries WHERE record_id = ?`, recordID)
	return err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
