package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/usecase"
	"github.com/go-chi/chi/v5"
)

type TaskHandler struct {
	taskService *usecase.TaskService
}

func NewTaskHandler(taskService *usecase.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

type createTaskRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Assignee    entity.Assignee       `json:"assignee"`
	Deadline    entity.DeadlineChoice `json:"deadline"`
}

// updateTaskRequest: deadline с пустым выбором снимает срок.
type updateTaskRequest struct {
	Title       *string                `json:"title,omitempty"`
	Description *string                `json:"description,omitempty"`
	Deadline    *entity.DeadlineChoice `json:"deadline,omitempty"`
	Assignee    *entity.Assignee       `json:"assignee,omitempty"`
}

type reworkTaskRequest struct {
	Note     string                `json:"note"`
	Deadline entity.DeadlineChoice `json:"deadline"`
}

// создаем новую задачу
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decode(w, r, &req) {
		return
	}

	deadline, err := h.taskService.ResolveDeadline(req.Deadline)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), ActorID(r.Context()), &entity.CreateTaskRequest{
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.Assignee,
		Deadline:    deadline,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := h.taskService.GetTask(r.Context(), ActorID(r.Context()), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decode(w, r, &req) {
		return
	}

	update := &entity.UpdateTaskRequest{
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.Assignee,
	}
	if req.Deadline != nil {
		deadline, err := h.taskService.ResolveDeadline(*req.Deadline)
		if err != nil {
			writeError(w, err)
			return
		}
		update.Deadline = deadline
		update.ClearDeadline = deadline == nil
	}

	task, err := h.taskService.UpdateTask(r.Context(), ActorID(r.Context()), taskID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req entity.CompleteTaskRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := h.taskService.CompleteTask(r.Context(), ActorID(r.Context()), taskID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) CloseTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := h.taskService.CloseTask(r.Context(), ActorID(r.Context()), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usecase.ResultOf(nil, "Задача закрыта"))
}

func (h *TaskHandler) ReworkTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req reworkTaskRequest
	if !decode(w, r, &req) {
		return
	}
	deadline, err := h.taskService.ResolveDeadline(req.Deadline)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := h.taskService.ReworkTask(r.Context(), ActorID(r.Context()), taskID, &entity.ReworkTaskRequest{
		Note:     req.Note,
		Deadline: deadline,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := h.taskService.DeleteTask(r.Context(), ActorID(r.Context()), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usecase.ResultOf(nil, "Задача удалена"))
}

func (h *TaskHandler) GetTaskAudit(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	audits, err := h.taskService.GetTaskAudit(r.Context(), ActorID(r.Context()), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(audits))
}

func (h *TaskHandler) ListOpenTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListOpenTasks(r.Context(), ActorID(r.Context()))
	writeList(w, tasks, err)
}

func (h *TaskHandler) ListMyTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListUserTasks(r.Context(), ActorID(r.Context()))
	writeList(w, tasks, err)
}

func (h *TaskHandler) ListSectorTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListSectorTasks(r.Context(), ActorID(r.Context()), entity.Sector(chi.URLParam(r, "sector")))
	writeList(w, tasks, err)
}

func (h *TaskHandler) ListCompletedTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListCompletedTasks(r.Context(), ActorID(r.Context()))
	writeList(w, tasks, err)
}

func (h *TaskHandler) ListOverdueTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListOverdueTasks(r.Context(), ActorID(r.Context()))
	writeList(w, tasks, err)
}

func (h *TaskHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, usecase.Result{Message: "Некорректный id сотрудника"})
		return
	}
	if err := h.taskService.DeleteUser(r.Context(), ActorID(r.Context()), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usecase.ResultOf(nil, "Сотрудник удалён"))
}

func taskIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || taskID <= 0 {
		writeJSON(w, http.StatusBadRequest, usecase.Result{Message: "Некорректный id задачи"})
		return 0, false
	}
	return taskID, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, entity.ErrInvalidTaskData) {
			writeError(w, err)
			return false
		}
		writeJSON(w, http.StatusBadRequest, usecase.Result{Message: "Invalid JSON"})
		return false
	}
	return true
}

func writeList(w http.ResponseWriter, tasks []entity.Task, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// writeError переводит ошибку сервиса в HTTP-статус и текст для пользователя.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrTaskNotFound), errors.Is(err, entity.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrInvalidTaskData), errors.Is(err, entity.ErrNoFieldsToUpdate):
		status = http.StatusBadRequest
	default:
		logging.Logger.WithError(err).Error("Internal server error")
	}
	writeJSON(w, status, usecase.ResultOf(err, ""))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Logger.WithError(err).Warn("Ошибка записи ответа")
	}
}
