package store

import (
	"context"
	"errors"
	"regexp"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/tasktracker/backend/internal/models"
	"github.com/ayush/tasktracker/backend/internal/tasks"
)

// sortKeys maps API sort names to document fields.
var sortKeys = map[string]string{
	"createdAt": "created_at",
	"deadline":  "deadline",
	"title":     "title",
	"status":    "status",
}

// MongoStore handles task CRUD in MongoDB.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("tasks")}
}

// EnsureIndexes creates the owner index used by every query.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return oops.Code("TASK_INDEX_FAILED").Wrap(err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, task *models.Task) error {
	res, err := s.col.InsertOne(ctx, task)
	if err != nil {
		return oops.Code("TASK_INSERT_FAILED").With("user_id", task.UserID).Wrap(err)
	}
	task.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoStore) List(ctx context.Context, userID string, q models.TaskQuery) ([]models.Task, error) {
	opts := options.Find().SetSort(taskSort(q))
	cur, err := s.col.Find(ctx, taskFilter(userID, q), opts)
	if err != nil {
		return nil, oops.Code("TASK_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, oops.Code("TASK_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, tasks.ErrNotFound
	}
	var task models.Task
	err = s.col.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tasks.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("TASK_GET_FAILED").With("task_id", id).Wrap(err)
	}
	return &task, nil
}

func (s *MongoStore) Update(ctx context.Context, task *models.Task) error {
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": task.ID, "user_id": task.UserID}, task)
	if err != nil {
		return oops.Code("TASK_UPDATE_FAILED").With("task_id", task.ID.Hex()).Wrap(err)
	}
	if res.MatchedCount == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, userID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return tasks.ErrNotFound
	}
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid, "user_id": userID})
	if err != nil {
		return oops.Code("TASK_DELETE_FAILED").With("task_id", id).Wrap(err)
	}
	if res.DeletedCount == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

// taskFilter always scopes by owner. The search term is matched literally.
func taskFilter(userID string, q models.TaskQuery) bson.M {
	filter := bson.M{"user_id": userID}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Search != "" {
		filter["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
	}
	return filter
}

func taskSort(q models.TaskQuery) bson.D {
	key, ok := sortKeys[q.SortBy]
	if !ok {
		key = "created_at"
	}
	order := -1
	if q.Asc {
		order = 1
	}
	return bson.D{{Key: key, Value: order}}
}
