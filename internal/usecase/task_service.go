package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// AuditPublisher интерфейс для публикации аудита в очередь
type AuditPublisher interface {
	PublishAuditMessage(ctx context.Context, message *entity.AuditMessage) error
}

type TaskService struct {
	taskRepo   repository.ITaskRepository
	userRepo   repository.IUserRepository
	auditRepo  repository.ITaskAuditRepository
	resolver   *AssignmentResolver
	dispatcher *Dispatcher
	audit      AuditPublisher
	loc        *time.Location
	now        func() time.Time
}

func NewTaskService(
	taskRepo repository.ITaskRepository,
	userRepo repository.IUserRepository,
	auditRepo repository.ITaskAuditRepository,
	dispatcher *Dispatcher,
	audit AuditPublisher,
	loc *time.Location,
) *TaskService {
	if loc == nil {
		loc = time.UTC
	}
	return &TaskService{
		taskRepo:   taskRepo,
		userRepo:   userRepo,
		auditRepo:  auditRepo,
		resolver:   NewAssignmentResolver(userRepo),
		dispatcher: dispatcher,
		audit:      audit,
		loc:        loc,
		now:        time.Now,
	}
}

// ResolveDeadline переводит выбор срока (пресет или ручной ввод) в момент времени.
func (s *TaskService) ResolveDeadline(choice entity.DeadlineChoice) (*time.Time, error) {
	return choice.Resolve(s.now(), s.loc)
}

func (s *TaskService) CreateTask(ctx context.Context, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	// 1. Создавать задачи может только менеджер
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}

	// 2. Валидация и проверка исполнителя
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkExecutor(ctx, req.Assignee); err != nil {
		return nil, err
	}

	// 3. Создаем задачу
	task, err := s.taskRepo.Create(ctx, managerID, req)
	if err != nil {
		return nil, entity.Persistence("create task", err)
	}
	logging.Task(task.ID).WithField("assignee", task.Assignee.String()).Info("Создана задача")

	// 4. Аудит и уведомления уже после коммита, их ошибки задачу не откатывают
	s.sendAuditMessage(ctx, entity.ActionCreate, managerID, task.ID, nil, task)
	s.notifyAssignee(ctx, task, entity.KindNewTask, newTaskText(task, s.loc))

	return task, nil
}

// GetTask отдаёт карточку менеджеру или тому, кто может по ней отчитаться.
func (s *TaskService) GetTask(ctx context.Context, userID int64, taskID int) (*entity.Task, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !user.IsManager() && !s.resolver.CanComplete(task, user) {
		return nil, entity.ErrForbidden
	}
	return task, nil
}

func (s *TaskService) loadTask(ctx context.Context, taskID int) (*entity.Task, error) {
	task, err := s.taskRepo.GetByTaskId(ctx, taskID)
	if err != nil {
		return nil, entity.Persistence("get task", err)
	}
	if task == nil {
		return nil, entity.ErrTaskNotFound
	}
	return task, nil
}

// UpdateTask - правка полей незавершённой задачи, статус не меняется.
func (s *TaskService) UpdateTask(ctx context.Context, managerID int64, taskID int, req *entity.UpdateTaskRequest) (*entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Assignee != nil {
		if err := s.checkExecutor(ctx, *req.Assignee); err != nil {
			return nil, err
		}
	}

	// 1. Получаем текущую задачу, она нужна для сравнения ответственных
	oldTask, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if oldTask.IsCompleted() {
		return nil, entity.ErrInvalidTransition
	}

	// 2. Обновляем, условие на статус проверяется в том же запросе
	updatedTask, err := s.taskRepo.Update(ctx, taskID, req)
	if err != nil {
		return nil, entity.Persistence("update task", err)
	}
	if updatedTask == nil {
		return nil, s.classifyMiss(ctx, taskID)
	}
	logging.Task(taskID).Info("Задача изменена")

	s.sendAuditMessage(ctx, entity.ActionUpdate, managerID, taskID, oldTask, updatedTask)
	s.notifyUpdated(ctx, oldTask, updatedTask)

	return updatedTask, nil
}

// CompleteTask - отчёт исполнителя. Для задачи сектора отчитавшийся становится исполнителем.
func (s *TaskService) CompleteTask(ctx context.Context, userID int64, taskID int, req *entity.CompleteTaskRequest) (*entity.Task, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return nil, entity.ErrInvalidTransition
	}
	if !s.resolver.CanComplete(task, user) {
		return nil, entity.ErrForbidden
	}

	done, err := s.taskRepo.Complete(ctx, taskID, user.ID, req, s.now())
	if err != nil {
		return nil, entity.Persistence("complete task", err)
	}
	if done == nil {
		return nil, s.classifyMiss(ctx, taskID)
	}
	logging.Task(taskID).WithField("executor_id", user.ID).Info("Задача выполнена")

	s.sendAuditMessage(ctx, entity.ActionComplete, user.ID, taskID, task, done)
	s.dispatcher.Send(context.WithoutCancel(ctx), done.ID, entity.KindCompleted,
		completedTaskText(done, user, s.loc), []int64{done.ManagerID})

	return done, nil
}

// CloseTask - менеджер принял выполненную задачу, запись удаляется.
func (s *TaskService) CloseTask(ctx context.Context, managerID int64, taskID int) error {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return err
	}

	closed, err := s.taskRepo.DeleteCompleted(ctx, taskID)
	if err != nil {
		return entity.Persistence("close task", err)
	}
	if closed == nil {
		return s.classifyMiss(ctx, taskID)
	}
	logging.Task(taskID).Info("Задача закрыта")

	s.sendAuditMessage(ctx, entity.ActionClose, managerID, taskID, closed, nil)
	return nil
}

// ReworkTask возвращает выполненную задачу на доработку: старая удаляется,
// вместо неё создаётся новая с пометкой и чистыми флагами уведомлений.
func (s *TaskService) ReworkTask(ctx context.Context, managerID int64, taskID int, req *entity.ReworkTaskRequest) (*entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	original, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !original.IsCompleted() {
		return nil, entity.ErrInvalidTransition
	}

	old, created, err := s.taskRepo.Rework(ctx, taskID, entity.ReworkOf(original, req))
	if err != nil {
		return nil, entity.Persistence("rework task", err)
	}
	if old == nil {
		return nil, s.classifyMiss(ctx, taskID)
	}
	logging.Task(taskID).WithField("new_task_id", created.ID).Info("Задача отправлена на доработку")

	s.sendAuditMessage(ctx, entity.ActionRework, managerID, taskID, old, created)
	s.notifyAssignee(ctx, created, entity.KindNewTask, newTaskText(created, s.loc))

	return created, nil
}

// DeleteTask удаляет задачу в любом статусе и оповещает прежнего ответственного.
func (s *TaskService) DeleteTask(ctx context.Context, managerID int64, taskID int) error {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return err
	}

	deleted, err := s.taskRepo.Delete(ctx, taskID)
	if err != nil {
		return entity.Persistence("delete task", err)
	}
	if deleted == nil {
		return entity.ErrTaskNotFound
	}
	logging.Task(taskID).Info("Задача удалена")

	s.sendAuditMessage(ctx, entity.ActionDelete, managerID, taskID, deleted, nil)
	s.notifyAssignee(ctx, deleted, entity.KindDeletedTask, deletedTaskText(deleted))

	return nil
}

// Общие списки видит только менеджер, сотруднику доступен ListUserTasks.
func (s *TaskService) ListOpenTasks(ctx context.Context, managerID int64) ([]entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListOpen(ctx)
	return tasks, entity.Persistence("list open tasks", err)
}

func (s *TaskService) ListSectorTasks(ctx context.Context, managerID int64, sector entity.Sector) ([]entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	parsed, err := entity.ParseSector(string(sector))
	if err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListBySector(ctx, parsed)
	return tasks, entity.Persistence("list sector tasks", err)
}

func (s *TaskService) ListCompletedTasks(ctx context.Context, managerID int64) ([]entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListByStatus(ctx, entity.StatusCompleted)
	return tasks, entity.Persistence("list completed tasks", err)
}

func (s *TaskService) ListOverdueTasks(ctx context.Context, managerID int64) ([]entity.Task, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListByStatus(ctx, entity.StatusOverdue)
	return tasks, entity.Persistence("list overdue tasks", err)
}

// ListUserTasks - личные задачи пользователя и задачи его сектора.
func (s *TaskService) ListUserTasks(ctx context.Context, userID int64) ([]entity.Task, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListForUser(ctx, user.ID, user.Sector)
	return tasks, entity.Persistence("list user tasks", err)
}

func (s *TaskService) GetTaskAudit(ctx context.Context, managerID int64, taskID int) ([]entity.TaskAudit, error) {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return nil, err
	}
	audits, err := s.auditRepo.GetByTaskId(ctx, taskID)
	return audits, entity.Persistence("get task audit", err)
}

// DeleteUser удаляет сотрудника. Его незавершённые задачи переходят сектору сотрудника,
// а без сектора остаются без ответственного, и об этом узнаёт менеджер задачи.
func (s *TaskService) DeleteUser(ctx context.Context, managerID int64, userID int64) error {
	if _, err := s.requireManager(ctx, managerID); err != nil {
		return err
	}
	if userID == managerID {
		return fmt.Errorf("%w: cannot delete yourself", entity.ErrForbidden)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	// у менеджера задачи удаляются каскадом, такое удаление делается вне сервиса
	if user.IsManager() {
		return fmt.Errorf("%w: cannot delete a manager", entity.ErrForbidden)
	}

	open, err := s.taskRepo.ListForUser(ctx, user.ID, nil)
	if err != nil {
		return entity.Persistence("list user tasks", err)
	}

	handover := entity.Unassigned()
	if user.Sector != nil {
		handover = entity.AssignSector(*user.Sector)
	}

	type movedTask struct{ old, moved *entity.Task }
	var moved []movedTask
	if !handover.IsUnassigned() {
		for i := range open {
			updated, err := s.taskRepo.Update(ctx, open[i].ID, &entity.UpdateTaskRequest{Assignee: &handover})
			if err != nil {
				return entity.Persistence("hand over task", err)
			}
			// задачу успели завершить, её исполнитель просто обнулится
			if updated == nil {
				continue
			}
			moved = append(moved, movedTask{old: &open[i], moved: updated})
		}
	}

	deleted, err := s.userRepo.Delete(ctx, user.ID)
	if err != nil {
		return entity.Persistence("delete user", err)
	}
	if !deleted {
		return entity.ErrUserNotFound
	}
	logging.Logger.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"handed":    len(moved),
		"open":      len(open),
		"handed_to": handover.String(),
	}).Info("Сотрудник удалён")

	if handover.IsUnassigned() {
		for i := range open {
			task := open[i]
			task.Assignee = entity.Unassigned()
			s.sendAuditMessage(ctx, entity.ActionUpdate, managerID, task.ID, &open[i], &task)
			s.dispatcher.Send(context.WithoutCancel(ctx), task.ID, entity.KindOrphanedTask,
				orphanedTaskText(&task, user), []int64{task.ManagerID})
		}
		return nil
	}
	for _, m := range moved {
		s.sendAuditMessage(ctx, entity.ActionUpdate, managerID, m.moved.ID, m.old, m.moved)
		s.notifyAssignee(ctx, m.moved, entity.KindUpdatedTask, updatedTaskText(m.moved, s.loc))
	}
	return nil
}

func (s *TaskService) getUser(ctx context.Context, userID int64) (*entity.User, error) {
	user, err := s.userRepo.GetById(ctx, userID)
	if err != nil {
		return nil, entity.Persistence("get user", err)
	}
	if user == nil {
		return nil, entity.ErrUserNotFound
	}
	return user, nil
}

func (s *TaskService) requireManager(ctx context.Context, userID int64) (*entity.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsManager() {
		return nil, entity.ErrForbidden
	}
	return user, nil
}

// checkExecutor - назначать можно только зарегистрированного сотрудника.
func (s *TaskService) checkExecutor(ctx context.Context, a entity.Assignee) error {
	id, ok := a.UserID()
	if !ok {
		return nil
	}
	_, err := s.getUser(ctx, id)
	return err
}

// classifyMiss объясняет, почему условный UPDATE/DELETE не нашёл строку:
// задачи нет или она в неподходящем статусе.
func (s *TaskService) classifyMiss(ctx context.Context, taskID int) error {
	task, err := s.taskRepo.GetByTaskId(ctx, taskID)
	if err != nil {
		return entity.Persistence("get task", err)
	}
	if task == nil {
		return entity.ErrTaskNotFound
	}
	return entity.ErrInvalidTransition
}

func (s *TaskService) notifyAssignee(ctx context.Context, task *entity.Task, kind entity.NotificationKind, text string) {
	if task.Assignee.IsUnassigned() {
		logging.Task(task.ID).WithField("kind", kind).Warn("У задачи нет ответственного, уведомление пропущено")
		return
	}
	ctx = context.WithoutCancel(ctx)
	recipients, err := s.resolver.Recipients(ctx, task.Assignee)
	if err != nil {
		logging.Task(task.ID).WithError(err).Error("Не удалось определить получателей уведомления")
		return
	}
	s.dispatcher.Send(ctx, task.ID, kind, text, recipients)
}

// notifyUpdated: при смене ответственного прежний узнаёт о переназначении,
// новый всегда получает актуальную карточку.
func (s *TaskService) notifyUpdated(ctx context.Context, oldTask, newTask *entity.Task) {
	if !oldTask.Assignee.Equal(newTask.Assignee) {
		s.notifyAssignee(ctx, oldTask, entity.KindReassigned, reassignedText(oldTask))
	}
	s.notifyAssignee(ctx, newTask, entity.KindUpdatedTask, updatedTaskText(newTask, s.loc))
}

func taskSnapshot(task *entity.Task) map[string]any {
	snapshot := map[string]any{
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"assignee":    task.Assignee.String(),
		"manager_id":  task.ManagerID,
	}
	if task.Deadline != nil {
		snapshot["deadline"] = task.Deadline.UTC()
	}
	if task.Comment != nil {
		snapshot["comment"] = *task.Comment
	}
	if len(task.PhotoIDs) > 0 {
		snapshot["photo_ids"] = task.PhotoIDs
	}
	return snapshot
}

func diffSnapshots(oldValues, newValues map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newValue := range newValues {
		oldValue, ok := oldValues[key]
		if !ok || !sameValue(oldValue, newValue) {
			changes[key] = map[string]any{"old": oldValue, "new": newValue}
		}
	}
	for key, oldValue := range oldValues {
		if _, ok := newValues[key]; !ok {
			changes[key] = map[string]any{"old": oldValue, "new": nil}
		}
	}
	return changes
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

// Вспомогательный метод для отправки аудита
func (s *TaskService) sendAuditMessage(
	ctx context.Context,
	action entity.ActionType,
	userID int64,
	taskID int,
	oldTask *entity.Task,
	newTask *entity.Task,
) {
	if s.audit == nil {
		return
	}

	auditMsg := &entity.AuditMessage{
		Action:    action,
		UserID:    userID,
		EntityID:  taskID,
		Timestamp: s.now(),
	}
	if oldTask != nil {
		auditMsg.OldValues = taskSnapshot(oldTask)
	}
	if newTask != nil {
		auditMsg.NewValues = taskSnapshot(newTask)
		if action == entity.ActionRework {
			auditMsg.NewValues["task_id"] = newTask.ID
		}
	}
	if auditMsg.OldValues != nil && auditMsg.NewValues != nil {
		auditMsg.Changes = diffSnapshots(auditMsg.OldValues, auditMsg.NewValues)
	}

	// Асинхронная отправка в очередь
	ctx = context.WithoutCancel(ctx)
	go func() {
		fields := logrus.Fields{"task_id": taskID, "action": action}
		if err := s.audit.PublishAuditMessage(ctx, auditMsg); err != nil {
			logging.Logger.WithFields(fields).WithError(err).Error("Ошибка отправки аудита")
			return
		}
		logging.Logger.WithFields(fields).Debug("Аудит отправлен")
	}()
}
