package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
)

// memTaskRepo - хранилище задач в памяти с теми же условными обновлениями, что и SQL.
type memTaskRepo struct {
	mu     sync.Mutex
	nextID int
	tasks  map[int]*entity.Task

	// ошибки для отдельных методов
	markErr   error
	updateErr error
	marks     []map[entity.NotificationTier][]int
}

var _ repository.ITaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{nextID: 1, tasks: make(map[int]*entity.Task)}
}

func clone(t *entity.Task) *entity.Task {
	c := *t
	c.PhotoIDs = append([]string(nil), t.PhotoIDs...)
	return &c
}

func (r *memTaskRepo) insert(managerID int64, req *entity.CreateTaskRequest) *entity.Task {
	now := time.Now()
	task := &entity.Task{
		ID:          r.nextID,
		Title:       req.Title,
		Description: req.Description,
		Assignee:    req.Assignee,
		Deadline:    req.Deadline,
		Status:      entity.StatusActive,
		ManagerID:   managerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.nextID++
	r.tasks[task.ID] = task
	return clone(task)
}

func (r *memTaskRepo) Create(ctx context.Context, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(managerID, req), nil
}

func (r *memTaskRepo) GetByTaskId(ctx context.Context, taskId int) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskId]; ok {
		return clone(t), nil
	}
	return nil, nil
}

func (r *memTaskRepo) Update(ctx context.Context, id int, req *entity.UpdateTaskRequest) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	t, ok := r.tasks[id]
	if !ok || t.Status == entity.StatusCompleted {
		return nil, nil
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Deadline != nil {
		d := *req.Deadline
		t.Deadline = &d
	}
	if req.ClearDeadline {
		t.Deadline = nil
	}
	if req.Assignee != nil {
		t.Assignee = *req.Assignee
	}
	t.UpdatedAt = time.Now()
	return clone(t), nil
}

func (r *memTaskRepo) Complete(ctx context.Context, id int, executorID int64, report *entity.CompleteTaskRequest, at time.Time) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status == entity.StatusCompleted {
		return nil, nil
	}
	t.Status = entity.StatusCompleted
	t.CompletedAt = &at
	if report.Comment != "" {
		c := report.Comment
		t.Comment = &c
	}
	t.PhotoIDs = append([]string(nil), report.PhotoIDs...)
	if _, bound := t.Assignee.UserID(); !bound {
		t.Assignee = entity.AssignUser(executorID)
	}
	return clone(t), nil
}

func (r *memTaskRepo) Delete(ctx context.Context, id int) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	delete(r.tasks, id)
	return t, nil
}

func (r *memTaskRepo) DeleteCompleted(ctx context.Context, id int) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != entity.StatusCompleted {
		return nil, nil
	}
	delete(r.tasks, id)
	return t, nil
}

func (r *memTaskRepo) Rework(ctx context.Context, id int, req *entity.CreateTaskRequest) (*entity.Task, *entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != entity.StatusCompleted {
		return nil, nil, nil
	}
	delete(r.tasks, id)
	return t, r.insert(t.ManagerID, req), nil
}

func (r *memTaskRepo) UpdateStatusForExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if t.Status == entity.StatusActive && t.ExpiredAt(now) {
			t.Status = entity.StatusOverdue
			n++
		}
	}
	return n, nil
}

func (r *memTaskRepo) MarkNotified(ctx context.Context, marks map[entity.NotificationTier][]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	r.marks = append(r.marks, marks)
	for tier, ids := range marks {
		for _, id := range ids {
			if t, ok := r.tasks[id]; ok {
				t.Notified.Set(tier)
			}
		}
	}
	return nil
}

func (r *memTaskRepo) filter(keep func(*entity.Task) bool) []entity.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Task
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, *clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memTaskRepo) ListOpen(ctx context.Context) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool { return t.Status != entity.StatusCompleted }), nil
}

func (r *memTaskRepo) ListByStatus(ctx context.Context, status entity.TaskStatus) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool { return t.Status == status }), nil
}

func (r *memTaskRepo) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool {
		s, ok := t.Assignee.Sector()
		return ok && s == sector
	}), nil
}

func (r *memTaskRepo) ListForUser(ctx context.Context, userID int64, sector *entity.Sector) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool {
		if t.Status == entity.StatusCompleted {
			return false
		}
		if id, ok := t.Assignee.UserID(); ok {
			return id == userID
		}
		s, ok := t.Assignee.Sector()
		return ok && sector != nil && s == *sector
	}), nil
}

func (r *memTaskRepo) ListOverdueUnnotified(ctx context.Context) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool {
		return t.Status == entity.StatusOverdue && !t.Notified.Overdue
	}), nil
}

func (r *memTaskRepo) ListUpcomingDeadlines(ctx context.Context, from, to time.Time) ([]entity.Task, error) {
	return r.filter(func(t *entity.Task) bool {
		return t.Status == entity.StatusActive && t.Deadline != nil &&
			!t.Deadline.Before(from) && !t.Deadline.After(to)
	}), nil
}

func (r *memTaskRepo) dropExecutor(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if id, ok := t.Assignee.UserID(); ok && id == userID {
			t.Assignee = entity.Unassigned()
		}
	}
}

func (r *memTaskRepo) get(id int) *entity.Task {
	t, _ := r.GetByTaskId(context.Background(), id)
	return t
}

type memUserRepo struct {
	mu      sync.Mutex
	users   map[int64]entity.User
	sectErr error
	// onDelete повторяет ON DELETE SET NULL у task.executor_id
	onDelete func(id int64)
}

var _ repository.IUserRepository = (*memUserRepo)(nil)

func newMemUserRepo(users ...entity.User) *memUserRepo {
	r := &memUserRepo{users: make(map[int64]entity.User)}
	for _, u := range users {
		r.add(u)
	}
	return r
}

func (r *memUserRepo) add(u entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *memUserRepo) GetById(ctx context.Context, id int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memUserRepo) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sectErr != nil {
		return nil, r.sectErr
	}
	var out []entity.User
	for _, u := range r.users {
		if u.InSector(sector) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	_, ok := r.users[id]
	delete(r.users, id)
	r.mu.Unlock()
	if ok && r.onDelete != nil {
		r.onDelete(id)
	}
	return ok, nil
}

// MockTaskAuditRepository - мок для ITaskAuditRepository
type MockTaskAuditRepository struct {
	CreateFunc      func(ctx context.Context, audit *entity.TaskAudit) error
	GetByTaskIdFunc func(ctx context.Context, taskId int) ([]entity.TaskAudit, error)
}

var _ repository.ITaskAuditRepository = (*MockTaskAuditRepository)(nil)

func (m *MockTaskAuditRepository) Create(ctx context.Context, audit *entity.TaskAudit) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, audit)
	}
	return nil
}

func (m *MockTaskAuditRepository) GetByTaskId(ctx context.Context, taskId int) ([]entity.TaskAudit, error) {
	if m.GetByTaskIdFunc != nil {
		return m.GetByTaskIdFunc(ctx, taskId)
	}
	return nil, nil
}

// MockAuditPublisher - мок для AuditPublisher, сообщения складываются в канал
type MockAuditPublisher struct {
	Messages chan *entity.AuditMessage
}

func newMockAuditPublisher() *MockAuditPublisher {
	return &MockAuditPublisher{Messages: make(chan *entity.AuditMessage, 16)}
}

func (m *MockAuditPublisher) PublishAuditMessage(ctx context.Context, message *entity.AuditMessage) error {
	select {
	case m.Messages <- message:
	default:
	}
	return nil
}

var errDelivery = errors.New("telegram: chat not found")

// recordingNotifier запоминает все уведомления, получателям из failFor возвращает ошибку.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []entity.Notification
	failFor map[int64]bool
}

func newRecordingNotifier(failFor ...int64) *recordingNotifier {
	n := &recordingNotifier{failFor: make(map[int64]bool)}
	for _, id := range failFor {
		n.failFor[id] = true
	}
	return n
}

func (n *recordingNotifier) Notify(ctx context.Context, msg *entity.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[msg.RecipientID] {
		return errDelivery
	}
	n.sent = append(n.sent, *msg)
	return nil
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

// recipients возвращает отсортированных получателей уведомлений указанного вида.
func (n *recordingNotifier) recipients(kind entity.NotificationKind) []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []int64
	for _, msg := range n.sent {
		if msg.Kind == kind {
			ids = append(ids, msg.RecipientID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last(kind entity.NotificationKind) *entity.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			msg := n.sent[i]
			return &msg
		}
	}
	return nil
}

const (
	managerID   int64 = 1
	cookID      int64 = 42
	cook2ID     int64 = 43
	waiterID    int64 = 50
	waiter2ID   int64 = 51
	bartenderID int64 = 60
)

func sectorPtr(s entity.Sector) *entity.Sector { return &s }

func staff() []entity.User {
	return []entity.User{
		{ID: managerID, FullName: "Анна Петрова", Role: entity.RoleManager},
		{ID: cookID, FullName: "Иван Сидоров", Role: entity.RoleStaff, Position: "повар", Sector: sectorPtr(entity.SectorKitchen)},
		{ID: cook2ID, FullName: "Олег Смирнов", Role: entity.RoleStaff, Position: "су-шеф", Sector: sectorPtr(entity.SectorKitchen)},
		{ID: waiterID, FullName: "Мария Иванова", Role: entity.RoleStaff, Position: "официант", Sector: sectorPtr(entity.SectorHall)},
		{ID: waiter2ID, FullName: "Пётр Орлов", Role: entity.RoleStaff, Position: "официант", Sector: sectorPtr(entity.SectorHall)},
		{ID: bartenderID, FullName: "Ольга Белова", Role: entity.RoleStaff, Position: "бармен", Sector: sectorPtr(entity.SectorBar)},
	}
}

type fixture struct {
	tasks     *memTaskRepo
	users     *memUserRepo
	notifier  *recordingNotifier
	publisher *MockAuditPublisher
	service   *TaskService
	deadlines *DeadlineNotifier
	overdue   *OverdueEscalator
	now       time.Time
}

func newFixture(failFor ...int64) *fixture {
	f := &fixture{
		tasks:     newMemTaskRepo(),
		users:     newMemUserRepo(staff()...),
		notifier:  newRecordingNotifier(failFor...),
		publisher: newMockAuditPublisher(),
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.users.onDelete = f.tasks.dropExecutor
	dispatcher := NewDispatcher(f.notifier, 4)
	f.service = NewTaskService(f.tasks, f.users, &MockTaskAuditRepository{}, dispatcher, f.publisher, time.UTC)
	f.service.now = func() time.Time { return f.now }

	deadlines, err := NewDeadlineNotifier(f.tasks, f.users, dispatcher, DefaultTierWindows(), 48*time.Hour, time.UTC)
	if err != nil {
		panic(err)
	}
	f.deadlines = deadlines
	f.overdue = NewOverdueEscalator(f.tasks, f.users, dispatcher)
	return f
}

func (f *fixture) create(assignee entity.Assignee, deadline *time.Time) *entity.Task {
	task, err := f.service.CreateTask(context.Background(), managerID, &entity.CreateTaskRequest{
		Title:       "Помыть витрину",
		Description: "Витрина с десертами",
		Assignee:    assignee,
		Deadline:    deadline,
	})
	if err != nil {
		panic(err)
	}
	return task
}

func (f *fixture) at(d time.Duration) *time.Time {
	t := f.now.Add(d)
	return &t
}
