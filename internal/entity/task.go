package entity

import (
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusActive    TaskStatus = "active"
	StatusOverdue   TaskStatus = "overdue"
	StatusCompleted TaskStatus = "completed"
)

// NotificationTier - одноразовое уведомление, которое задача получает не более одного раза.
type NotificationTier string

const (
	TierOneDay   NotificationTier = "one_day"
	TierToday    NotificationTier = "today"
	TierTwoHours NotificationTier = "two_hours"
	TierOverdue  NotificationTier = "overdue"
)

// Column - имя булевой колонки флага в таблице task.
func (t NotificationTier) Column() string {
	switch t {
	case TierOneDay:
		return "notified_one_day"
	case TierToday:
		return "notified_today"
	case TierTwoHours:
		return "notified_two_hours"
	case TierOverdue:
		return "notified_overdue"
	}
	return ""
}

type NotificationFlags struct {
	OneDay   bool `json:"one_day"`
	Today    bool `json:"today"`
	TwoHours bool `json:"two_hours"`
	Overdue  bool `json:"overdue"`
}

func (f NotificationFlags) Has(t NotificationTier) bool {
	switch t {
	case TierOneDay:
		return f.OneDay
	case TierToday:
		return f.Today
	case TierTwoHours:
		return f.TwoHours
	case TierOverdue:
		return f.Overdue
	}
	return false
}

func (f *NotificationFlags) Set(t NotificationTier) {
	switch t {
	case TierOneDay:
		f.OneDay = true
	case TierToday:
		f.Today = true
	case TierTwoHours:
		f.TwoHours = true
	case TierOverdue:
		f.Overdue = true
	}
}

type Task struct {
	ID          int               `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Assignee    Assignee          `json:"assignee"`
	Deadline    *time.Time        `json:"deadline,omitempty"`
	Status      TaskStatus        `json:"status"`
	ManagerID   int64             `json:"manager_id"`
	Comment     *string           `json:"comment,omitempty"`
	PhotoIDs    []string          `json:"photo_ids,omitempty"`
	Notified    NotificationFlags `json:"notified"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func (t *Task) HasDeadline() bool {
	return t.Deadline != nil
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// ExpiredAt - дедлайн задан и уже прошёл.
func (t *Task) ExpiredAt(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now)
}

// валидация
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Assignee    Assignee   `json:"assignee"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

func (r *CreateTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTaskData)
	}
	return r.Assignee.Validate()
}

// UpdateTaskRequest - правка полей задачи, статус здесь не меняется.
type UpdateTaskRequest struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	ClearDeadline bool       `json:"clear_deadline,omitempty"`
	Assignee      *Assignee  `json:"assignee,omitempty"`
}

func (r *UpdateTaskRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Deadline == nil && !r.ClearDeadline && r.Assignee == nil
}

func (r *UpdateTaskRequest) Validate() error {
	if r.Empty() {
		return ErrNoFieldsToUpdate
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidTaskData)
		}
		r.Title = &title
	}
	if r.Deadline != nil && r.ClearDeadline {
		return fmt.Errorf("%w: deadline set and cleared at once", ErrInvalidTaskData)
	}
	if r.Assignee != nil {
		return r.Assignee.Validate()
	}
	return nil
}

// CompleteTaskRequest - отчёт о выполнении: комментарий и фото (telegram file id).
type CompleteTaskRequest struct {
	Comment  string   `json:"comment"`
	PhotoIDs []string `json:"photo_ids"`
}

// ReworkTaskRequest - возврат выполненной задачи на доработку.
type ReworkTaskRequest struct {
	Note     string     `json:"note"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (r *ReworkTaskRequest) Validate() error {
	r.Note = strings.TrimSpace(r.Note)
	if r.Note == "" {
		return fmt.Errorf("%w: rework note is required", ErrInvalidTaskData)
	}
	return nil
}

const ReworkTitlePrefix = "(Доработать!) "

// ReworkOf строит запрос на новую задачу вместо возвращённой на доработку.
func ReworkOf(original *Task, req *ReworkTaskRequest) *CreateTaskRequest {
	title := original.Title
	if !strings.HasPrefix(title, ReworkTitlePrefix) {
		title = ReworkTitlePrefix + title
	}
	return &CreateTaskRequest{
		Title: title,
		Description: fmt.Sprintf("Пояснение к исправлению:\n%s\n\nСтарое описание:\n%s",
			req.Note, original.Description),
		Assignee: original.Assignee,
		Deadline: req.Deadline,
	}
}
