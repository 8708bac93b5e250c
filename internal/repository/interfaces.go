package repository

import (
	"context"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
)

// ITaskRepository - хранилище задач.
// Методы, меняющие статус или флаги уведомлений, выполняются одним атомарным запросом
// с условием на текущий статус. Если условие не выполнено, возвращается nil без ошибки.
type ITaskRepository interface {
	Create(ctx context.Context, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error)
	GetByTaskId(ctx context.Context, taskId int) (*entity.Task, error)
	// Update правит поля незавершённой задачи. executor_id и sector пишутся одним UPDATE.
	Update(ctx context.Context, id int, req *entity.UpdateTaskRequest) (*entity.Task, error)
	// Complete переводит active/overdue в completed и привязывает исполнителя, если его не было.
	Complete(ctx context.Context, id int, executorID int64, report *entity.CompleteTaskRequest, at time.Time) (*entity.Task, error)
	Delete(ctx context.Context, id int) (*entity.Task, error)
	DeleteCompleted(ctx context.Context, id int) (*entity.Task, error)
	// Rework в одной транзакции удаляет выполненную задачу и создаёт новую.
	Rework(ctx context.Context, id int, req *entity.CreateTaskRequest) (old *entity.Task, created *entity.Task, err error)

	UpdateStatusForExpired(ctx context.Context, now time.Time) (int64, error)
	MarkNotified(ctx context.Context, marks map[entity.NotificationTier][]int) error

	ListOpen(ctx context.Context) ([]entity.Task, error)
	ListByStatus(ctx context.Context, status entity.TaskStatus) ([]entity.Task, error)
	ListBySector(ctx context.Context, sector entity.Sector) ([]entity.Task, error)
	ListForUser(ctx context.Context, userID int64, sector *entity.Sector) ([]entity.Task, error)
	ListOverdueUnnotified(ctx context.Context) ([]entity.Task, error)
	ListUpcomingDeadlines(ctx context.Context, from, to time.Time) ([]entity.Task, error)
}

// IUserRepository - справочник пользователей. Регистрация живёт вне сервиса, удаление здесь.
type IUserRepository interface {
	GetById(ctx context.Context, id int64) (*entity.User, error)
	ListBySector(ctx context.Context, sector entity.Sector) ([]entity.User, error)
	// Delete возвращает false, если пользователя уже нет. executor_id его задач становится NULL.
	Delete(ctx context.Context, id int64) (bool, error)
}

// ITaskAuditRepository - интерфейс для TaskAuditRepository
type ITaskAuditRepository interface {
	Create(ctx context.Context, audit *entity.TaskAudit) error
	GetByTaskId(ctx context.Context, taskId int) ([]entity.TaskAudit, error)
}
