package models

import "time"

// SessionRecord is the durable projection of a learner's session, keyed by
// (learner_id, course_id). At most one record per pair may exist with
// is_completed = false; the record repository enforces that with a unique
// partial index.
type SessionRecord struct {
	ID                          string              `bson:"_id,omitempty" json:"id"`
	LearnerID                   string              `bson:"learner_id" json:"learner_id"`
	CourseID                    string              `bson:"course_id" json:"course_id"`
	CurrentUnitIndex            int                 `bson:"current_unit_index" json:"current_unit_index"`
	Answers                     map[string][]string `bson:"answers" json:"answers"`
	RunningScore                float64             `bson:"running_score" json:"running_score"`
	QuestionsAnswered           int                 `bson:"questions_answered" json:"questions_answered"`
	IncorrectQuestionIDs        []string            `bson:"incorrect_question_ids" json:"incorrect_question_ids"`
	PartiallyCorrectQuestionIDs []string            `bson:"partially_correct_question_ids" json:"partially_correct_question_ids"`
	IsCompleted                 bool                `bson:"is_completed" json:"is_completed"`
	FinalGrade                  *float64            `bson:"final_grade" json:"final_grade"`
	CreatedAt                   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt                   time.Time           `bson:"updated_at" json:"updated_at"`
}

// CacheEntry is the local fallback snapshot mirrored at flush time, keyed by
// the persisted record id. It exists so teardown-time state survives even
// when the remote write does not complete.
type CacheEntry struct {
	RecordID          string              `json:"record_id"`
	ElapsedSeconds    int                 `json:"elapsed_seconds"`
	Answers           map[string][]string `json:"answers"`
	RunningScore      float64             `json:"running_score"`
	QuestionsAnswered int                 `json:"questions_answered"`
	CurrentUnitIndex  int                 `json:"current_unit_index"`
	UpdatedAt         time.Time           `json:"updated_at"`
}
