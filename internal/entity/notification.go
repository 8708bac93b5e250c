package entity

import "time"

type NotificationKind string

const (
	KindNewTask      NotificationKind = "new_task"
	KindUpdatedTask  NotificationKind = "updated_task"
	KindReassigned   NotificationKind = "reassigned"
	KindDeletedTask  NotificationKind = "deleted_task"
	KindOrphanedTask NotificationKind = "orphaned_task"
	KindCompleted    NotificationKind = "completed"
	KindDeadline     NotificationKind = "deadline"
	KindOverdue      NotificationKind = "overdue"
	KindOverdueAlert NotificationKind = "overdue_manager"
)

// Notification - сообщение одному получателю в telegram.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID int64            `json:"recipient_id"`
	TaskID      int              `json:"task_id"`
	Kind        NotificationKind `json:"kind"`
	Text        string           `json:"text"`
	CreatedAt   time.Time        `json:"created_at"`
}
