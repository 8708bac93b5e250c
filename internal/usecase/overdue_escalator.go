package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
)

// OverdueEscalator переводит просроченные задачи в overdue и один раз
// оповещает менеджера и ответственных.
type OverdueEscalator struct {
	tasks      repository.ITaskRepository
	users      repository.IUserRepository
	resolver   *AssignmentResolver
	dispatcher *Dispatcher
}

func NewOverdueEscalator(tasks repository.ITaskRepository, users repository.IUserRepository, dispatcher *Dispatcher) *OverdueEscalator {
	return &OverdueEscalator{
		tasks:      tasks,
		users:      users,
		resolver:   NewAssignmentResolver(users),
		dispatcher: dispatcher,
	}
}

// Tick: сначала атомарный перевод active -> overdue, потом рассылка по ещё не оповещённым.
// Возвращает число обработанных задач.
func (e *OverdueEscalator) Tick(ctx context.Context, now time.Time) (int, error) {
	flipped, err := e.tasks.UpdateStatusForExpired(ctx, now)
	if err != nil {
		return 0, entity.Persistence("update expired tasks", err)
	}
	if flipped > 0 {
		logging.Logger.Infof("Просрочено задач: %d", flipped)
	}

	overdue, err := e.tasks.ListOverdueUnnotified(ctx)
	if err != nil {
		return 0, entity.Persistence("list overdue tasks", err)
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	processed := make([]int, 0, len(overdue))
	for i := range overdue {
		e.escalate(ctx, &overdue[i])
		processed = append(processed, overdue[i].ID)
	}

	// флаг ставится всем обработанным, даже если часть отправок не удалась
	if err := e.tasks.MarkNotified(ctx, map[entity.NotificationTier][]int{entity.TierOverdue: processed}); err != nil {
		return len(processed), entity.Persistence("mark overdue notifications", err)
	}
	return len(processed), nil
}

func (e *OverdueEscalator) escalate(ctx context.Context, task *entity.Task) {
	log := logging.Task(task.ID)

	if task.ManagerID != 0 {
		e.dispatcher.Send(ctx, task.ID, entity.KindOverdueAlert,
			overdueManagerText(task, e.describeAssignee(ctx, task)), []int64{task.ManagerID})
	} else {
		log.Warn("У просроченной задачи нет менеджера")
	}

	recipients, err := e.resolver.Recipients(ctx, task.Assignee)
	if err != nil {
		log.WithError(err).Error("Не удалось определить получателей уведомления о просрочке")
		return
	}
	if len(recipients) == 0 {
		log.Info("Просроченная задача без исполнителя, уведомлять некого")
		return
	}
	delivered := e.dispatcher.Send(ctx, task.ID, entity.KindOverdue, overdueText(task), recipients)
	log.WithField("delivered", delivered).Info("Отправлены уведомления о просрочке")
}

func (e *OverdueEscalator) describeAssignee(ctx context.Context, task *entity.Task) string {
	if sector, ok := task.Assignee.Sector(); ok {
		return fmt.Sprintf("сектору '%s'", sector.Title())
	}
	id, ok := task.Assignee.UserID()
	if !ok {
		return unknownAssignee
	}
	user, err := e.users.GetById(ctx, id)
	if err != nil {
		logging.Task(task.ID).WithError(err).Warn("Не удалось получить исполнителя")
		return unknownAssignee
	}
	return executorLabel(user)
}
