package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Task is a single to-do item stored in MongoDB.
type Task struct {
	ID          primitive.ObjectID `json:"_id"         bson:"_id,omitempty"`
	UserID      string             `json:"user"        bson:"user_id"`
	Title       string             `json:"title"       bson:"title"`
	Description string             `json:"description" bson:"description"`
	Deadline    *time.Time         `json:"deadline"    bson:"deadline"`
	Status      string             `json:"status"      bson:"status"`
	CreatedAt   time.Time          `json:"createdAt"   bson:"created_at"`
	UpdatedAt   time.Time          `json:"updatedAt"   bson:"updated_at"`
}

// TaskQuery narrows and orders a user's task list.
type TaskQuery struct {
	Status string
	Search string
	SortBy string
	Asc    bool
}

// CreateTaskRequest is the JSON body for POST /api/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      string     `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

// UpdateTaskRequest is the JSON body for PUT /api/tasks/{id}. Absent fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      *string    `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
}

// TaskExport is the JSON snapshot written to object storage.
type TaskExport struct {
	UserID     string    `json:"user"`
	ExportedAt time.Time `json:"exportedAt"`
	Tasks      []Task    `json:"tasks"`
}
