package repository

import (
	"context"

	"quiz-session-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContentRepository reads the course question bank and case-group metadata
// from the content store. The engine treats this content as immutable for
// the lifetime of a session. Results are sorted by _id so load order is
// stable across invocations, which unit assembly depends on.
type ContentRepository struct {
	Questions  *mongo.Collection
	CaseGroups *mongo.Collection
}

func NewContentRepository(db *mongo.Database) *ContentRepository {
	return &ContentRepository{
		Questions:  db.Collection("questions"),
		CaseGroups: db.Collection("case_groups"),
	}
}

func (r *ContentRepository) FetchQuestions(ctx context.Context, courseID, unitFilter string) ([]models.Question, error) {
	filter := bson.M{"course_id": courseID}
	if unitFilter != "" {
		filter["unit_id"] = unitFilter
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.Questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var questions []models.Question
	for cur.Next(ctx) {
		var q models.Question
		if err := cur.Decode(&q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, cur.Err()
}

func (r *ContentRepository) FetchCaseGroups(ctx context.Context, courseID, unitFilter string) ([]models.CaseGroup, error) {
	filter := bson.M{"course_id": courseID}
	if unitFilter != "" {
		filter["unit_id"] = unitFilter
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.CaseGroups.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var groups []models.CaseGroup
	for cur.Next(ctx) {
		var g models.CaseGroup
		if err := cur.Decode(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, cur.Err()
}
