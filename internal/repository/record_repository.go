package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-session-service/internal/models"
	syncx "quiz-session-service/internal/sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// recordDoc is the stored shape; _id is a real ObjectID while the model
// carries its hex form.
type recordDoc struct {
	ID                          primitive.ObjectID  `bson:"_id,omitempty"`
	LearnerID                   string              `bson:"learner_id"`
	CourseID                    string              `bson:"course_id"`
	CurrentUnitIndex            int                 `bson:"current_unit_index"`
	Answers                     map[string][]string `bson:"answers"`
	RunningScore                float64             `bson:"running_score"`
	QuestionsAnswered           int                 `bson:"questions_answered"`
	IncorrectQuestionIDs        []string            `bson:"incorrect_question_ids"`
	PartiallyCorrectQuestionIDs []string            `bson:"partially_correct_question_ids"`
	IsCompleted                 bool                `bson:"is_completed"`
	FinalGrade                  *float64            `bson:"final_grade"`
	CreatedAt                   time.Time           `bson:"created_at"`
	UpdatedAt                   time.Time           `bson:"updated_at"`
}

func (d *recordDoc) toModel() *models.SessionRecord {
	return &models.SessionRecord{
		ID:                          d.ID.Hex(),
		LearnerID:                   d.LearnerID,
		CourseID:                    d.CourseID,
		CurrentUnitIndex:            d.CurrentUnitIndex,
		Answers:                     d.Answers,
		RunningScore:                d.RunningScore,
		QuestionsAnswered:           d.QuestionsAnswered,
		IncorrectQuestionIDs:        d.IncorrectQuestionIDs,
		PartiallyCorrectQuestionIDs: d.PartiallyCorrectQuestionIDs,
		IsCompleted:                 d.IsCompleted,
		FinalGrade:                  d.FinalGrade,
		CreatedAt:                   d.CreatedAt,
		UpdatedAt:                   d.UpdatedAt,
	}
}

func fromModel(rec *models.SessionRecord) *recordDoc {
	return &recordDoc{
		LearnerID:                   rec.LearnerID,
		CourseID:                    rec.CourseID,
		CurrentUnitIndex:            rec.CurrentUnitIndex,
		Answers:                     rec.Answers,
		RunningScore:                rec.RunningScore,
		QuestionsAnswered:           rec.QuestionsAnswered,
		IncorrectQuestionIDs:        rec.IncorrectQuestionIDs,
		PartiallyCorrectQuestionIDs: rec.PartiallyCorrectQuestionIDs,
		IsCompleted:                 rec.IsCompleted,
		FinalGrade:                  rec.FinalGrade,
	}
}

// RecordRepository stores session records in Mongo. The uniqueness
// constraint "at most one non-completed record per (learner, course)" is a
// unique partial index, so a duplicate tab racing session creation shows up
// here as a duplicate-key error and is mapped to syncx.ErrDuplicateActive
// for the conflict recovery path.
type RecordRepository struct {
	Col *mongo.Collection
}

func NewRecordRepository(db *mongo.Database) *RecordRepository {
	return &RecordRepository{Col: db.Collection("session_records")}
}

func (r *RecordRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.Col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "learner_id", Value: 1}, {Key: "course_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"is_completed": false}),
	})
	return err
}

func (r *RecordRepository) FindActive(ctx context.Context, learnerID, courseID string) (*models.SessionRecord, error) {
	return r.findOne(ctx, bson.M{
		"learner_id":   learnerID,
		"course_id":    courseID,
		"is_completed": false,
	}, nil)
}

func (r *RecordRepository) FindCompleted(ctx context.Context, learnerID, courseID string) (*models.SessionRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	return r.findOne(ctx, bson.M{
		"learner_id":   learnerID,
		"course_id":    courseID,
		"is_completed": true,
	}, opts)
}

func (r *RecordRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.SessionRecord, error) {
	var doc recordDoc
	var err error
	if opts != nil {
		err = r.Col.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = r.Col.FindOne(ctx, filter).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *RecordRepository) Create(ctx context.Context, rec *models.SessionRecord) (string, error) {
	doc := fromModel(rec)
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	res, err := r.Col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return "", syncx.ErrDuplicateActive
	}
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Update overwrites the snapshot. The filter requires is_completed=false so
// a sealed record can never be touched again; the seal itself is the one
// update allowed to flip the flag.
func (r *RecordRepository) Update(ctx context.Context, id string, rec *models.SessionRecord) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	set := bson.M{
		"current_unit_index":             rec.CurrentUnitIndex,
		"answers":                        rec.Answers,
		"running_score":                  rec.RunningScore,
		"questions_answered":             rec.QuestionsAnswered,
		"incorrect_question_ids":         rec.IncorrectQuestionIDs,
		"partially_correct_question_ids": rec.PartiallyCorrectQuestionIDs,
		"is_completed":                   rec.IsCompleted,
		"final_grade":                    rec.FinalGrade,
		"updated_at":                     time.Now(),
	}
	res, err := r.Col.UpdateOne(ctx,
		bson.M{"_id": objID, "is_completed": false},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a sealed record from a vanished one.
		count, cErr := r.Col.CountDocuments(ctx, bson.M{"_id": objID})
		if cErr == nil && count > 0 {
			return syncx.ErrSealed
		}
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.Col.DeleteOne(ctx, bson.M{"_id": objID})
	return err
}
