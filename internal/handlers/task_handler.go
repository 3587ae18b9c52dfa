package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"taskhive/internal/models"
	"taskhive/internal/reminder"
	"taskhive/internal/service"
	"taskhive/internal/validation"
)

// TaskHandler handles task CRUD and reminder control
type TaskHandler struct {
	taskService *service.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
}

type taskResponse struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	ReminderState string     `json:"reminderState"`
	ReminderDueAt *time.Time `json:"reminderDueAt,omitempty"`
	ReminderEmail string     `json:"reminderEmail,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func toTaskResponse(t *models.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		DueDate:       t.DueDate,
		ReminderState: string(t.ReminderState),
		ReminderDueAt: t.ReminderDueAt,
		ReminderEmail: t.ReminderEmail,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (h *TaskHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return 0, false
	}
	return claims.UserID, true
}

func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid task id", "", nil)
		return 0, false
	}
	return id, true
}

// List handles GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskService.ListTasks(userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list tasks", "Failed to list tasks", err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	task, err := h.taskService.CreateTask(userID, req.Title, req.Description, req.DueDate)
	if err != nil {
		handleTaskError(w, err, "Failed to create task")
		return
	}

	respondWithJSON(w, http.StatusCreated, toTaskResponse(task))
}

// Get handles GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(userID, id)
	if err != nil {
		handleTaskError(w, err, "Failed to get task")
		return
	}

	respondWithJSON(w, http.StatusOK, toTaskResponse(task))
}

// Update handles PUT /tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	task, err := h.taskService.UpdateTask(userID, id, req.Title, req.Description, models.TaskStatus(req.Status), req.DueDate)
	if err != nil {
		handleTaskError(w, err, "Failed to update task")
		return
	}

	respondWithJSON(w, http.StatusOK, toTaskResponse(task))
}

// Delete handles DELETE /tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(userID, id); err != nil {
		handleTaskError(w, err, "Failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type armReminderRequest struct {
	DueAt time.Time `json:"dueAt"`
	Email string    `json:"email"` // optional override address
}

// ArmReminder handles POST /tasks/{id}/reminder
func (h *TaskHandler) ArmReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req armReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	task, err := h.taskService.ArmReminder(userID, id, req.DueAt, req.Email)
	if err != nil {
		handleTaskError(w, err, "Failed to arm reminder")
		return
	}

	respondWithJSON(w, http.StatusOK, toTaskResponse(task))
}

// DisableReminder handles DELETE /tasks/{id}/reminder
func (h *TaskHandler) DisableReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.DisableReminder(userID, id)
	if err != nil {
		handleTaskError(w, err, "Failed to disable reminder")
		return
	}

	respondWithJSON(w, http.StatusOK, toTaskResponse(task))
}

// RetryReminder handles POST /tasks/{id}/reminder/retry
func (h *TaskHandler) RetryReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.RetryReminder(userID, id)
	if err != nil {
		handleTaskError(w, err, "Failed to retry reminder")
		return
	}

	respondWithJSON(w, http.StatusOK, toTaskResponse(task))
}

func handleTaskError(w http.ResponseWriter, err error, logMsg string) {
	var vErr validation.ValidationError
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		respondWithError(w, http.StatusNotFound, "task not found", "", nil)
	case errors.As(err, &vErr):
		respondWithError(w, http.StatusBadRequest, vErr.Error(), "", nil)
	case errors.Is(err, reminder.ErrBadTransition):
		respondWithError(w, http.StatusConflict, err.Error(), "", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "request failed", logMsg, err)
	}
}
