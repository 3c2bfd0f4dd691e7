// Package tasks serves the owner-scoped task endpoints.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ayush/tasktracker/backend/internal/httpx"
	"github.com/ayush/tasktracker/backend/internal/logging"
	"github.com/ayush/tasktracker/backend/internal/middleware"
	"github.com/ayush/tasktracker/backend/internal/models"
)

// ErrNotFound is returned by stores when nothing matches for the owner.
var ErrNotFound = errors.New("task not found")

// Sortable fields accepted by List.
var sortFields = map[string]bool{"createdAt": true, "deadline": true, "title": true, "status": true}

var statuses = map[string]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
}

// Store defines the interface for task persistence. Every call is scoped to
// the owner; a task belonging to someone else behaves as if it did not exist.
type Store interface {
	Insert(ctx context.Context, task *models.Task) error
	List(ctx context.Context, userID string, q models.TaskQuery) ([]models.Task, error)
	Get(ctx context.Context, userID, id string) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, userID, id string) error
}

// FileStore defines the interface for export storage.
type FileStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
}

// Handler holds task HTTP handlers.
type Handler struct {
	store    Store
	files    FileStore
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(store Store, files FileStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, files: files, logger: logger, validate: validator.New(), now: time.Now}
}

// ExportKey is the object key holding a user's latest export.
func ExportKey(userID string) string {
	return fmt.Sprintf("exports/%s/tasks.json", userID)
}

// Create adds a task owned by the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	var req models.CreateTaskRequest
	h.decode(r, &req)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Title is required.")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid status.")
		return
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}

	now := h.now()
	task := &models.Task{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Status:      req.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.Insert(r.Context(), task); err != nil {
		h.serverError(w, r, "insert task failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, task)
}

// List returns the caller's tasks filtered by status and title search.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)
	params := r.URL.Query()

	q := models.TaskQuery{SortBy: "createdAt"}
	if s := params.Get("status"); statuses[s] {
		q.Status = s
	}
	q.Search = strings.TrimSpace(params.Get("q"))
	if s := params.Get("sortBy"); sortFields[s] {
		q.SortBy = s
	}
	q.Asc = params.Get("order") == "asc"

	tasks, err := h.store.List(r.Context(), userID, q)
	if err != nil {
		h.serverError(w, r, "list tasks failed", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	httpx.WriteJSON(w, http.StatusOK, tasks)
}

// Update applies the fields present in the body to one of the caller's tasks.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	task, err := h.store.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		httpx.WriteMessage(w, http.StatusNotFound, "Task not found.")
		return
	}
	if err != nil {
		h.serverError(w, r, "load task failed", err)
		return
	}

	var req models.UpdateTaskRequest
	h.decode(r, &req)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid status.")
		return
	}

	if req.Title != nil {
		task.Title = strings.TrimSpace(*req.Title)
		if task.Title == "" {
			httpx.WriteMessage(w, http.StatusBadRequest, "Title is required.")
			return
		}
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Deadline != nil {
		task.Deadline = req.Deadline
	}
	if req.Status != nil && *req.Status != "" {
		task.Status = *req.Status
	}
	task.UpdatedAt = h.now()

	if err := h.store.Update(r.Context(), task); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "Task not found.")
			return
		}
		h.serverError(w, r, "update task failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// Delete removes one of the caller's tasks.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	err := h.store.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		httpx.WriteMessage(w, http.StatusNotFound, "Task not found.")
		return
	}
	if err != nil {
		h.serverError(w, r, "delete task failed", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Task removed")
}

// Export snapshots all of the caller's tasks into object storage.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	tasks, err := h.store.List(r.Context(), userID, models.TaskQuery{SortBy: "createdAt"})
	if err != nil {
		h.serverError(w, r, "list tasks for export failed", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	export := models.TaskExport{UserID: userID, ExportedAt: h.now().UTC(), Tasks: tasks}
	data, err := json.Marshal(export)
	if err != nil {
		h.serverError(w, r, "encode export failed", err)
		return
	}

	key := ExportKey(userID)
	if err := h.files.Upload(r.Context(), key, data, "application/json"); err != nil {
		h.serverError(w, r, "upload export failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Export created",
		"key":     key,
		"count":   len(tasks),
	})
}

// DownloadExport streams the caller's latest export.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)

	data, _, err := h.files.Download(r.Context(), ExportKey(userID))
	if errors.Is(err, ErrNotFound) {
		httpx.WriteMessage(w, http.StatusNotFound, "No export available.")
		return
	}
	if err != nil {
		h.serverError(w, r, "download export failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=tasks.json")
	_, _ = w.Write(data)
}

// decode reads the JSON body. A malformed body decodes as empty and is only
// logged, so the field checks answer it.
func (h *Handler) decode(r *http.Request, v any) {
	if err := httpx.Decode(r, v); err != nil {
		h.logger.DebugContext(r.Context(), "ignoring malformed request body", "error", err, "path", r.URL.Path)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.LogError(r.Context(), h.logger, msg, err, false)
	httpx.WriteMessage(w, http.StatusInternalServerError, "Server error")
}

// mustUserID reads the id set by the auth gate. The routes are only mounted
// behind it.
func mustUserID(r *http.Request) string {
	id, _ := middleware.UserIDFrom(r.Context())
	return id
}
