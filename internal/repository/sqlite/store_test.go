package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
)

var (
	_ repository.ITaskRepository      = (*TaskRepository)(nil)
	_ repository.IUserRepository      = (*UserRepository)(nil)
	_ repository.ITaskAuditRepository = (*TaskAuditRepository)(nil)
)

const (
	managerID int64 = 100
	cookID    int64 = 200
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	kitchen := entity.SectorKitchen
	users := []entity.User{
		{ID: managerID, FullName: "Анна Менеджер", Role: entity.RoleManager},
		{ID: cookID, FullName: "Иван Повар", Role: entity.RoleStaff, Position: "повар", Sector: &kitchen},
	}
	for i := range users {
		if err := store.Users().Save(context.Background(), &users[i]); err != nil {
			t.Fatalf("Save(%d) error = %v", users[i].ID, err)
		}
	}
	return store
}

func createTask(t *testing.T, repo *TaskRepository, assignee entity.Assignee, deadline *time.Time) *entity.Task {
	t.Helper()
	task, err := repo.Create(context.Background(), managerID, &entity.CreateTaskRequest{
		Title:       "Проверить холодильник",
		Description: "Температура не выше +4",
		Assignee:    assignee,
		Deadline:    deadline,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return task
}

func TestTaskRepository_CreateAndGet(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	deadline := time.Now().Add(3 * time.Hour).Truncate(time.Millisecond)

	created := createTask(t, repo, entity.AssignSector(entity.SectorKitchen), &deadline)

	got, err := repo.GetByTaskId(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByTaskId() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByTaskId() = nil, want task")
	}
	if got.Status != entity.StatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}
	if s, ok := got.Assignee.Sector(); !ok || s != entity.SectorKitchen {
		t.Errorf("Assignee = %s, want sector:kitchen", got.Assignee)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, deadline)
	}
	if got.Notified != (entity.NotificationFlags{}) {
		t.Errorf("Notified = %+v, want all false", got.Notified)
	}

	missing, err := repo.GetByTaskId(context.Background(), 9999)
	if err != nil || missing != nil {
		t.Errorf("GetByTaskId(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestTaskRepository_UpdateReassignClearsOtherColumn(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	task := createTask(t, repo, entity.AssignSector(entity.SectorKitchen), nil)

	user := entity.AssignUser(cookID)
	updated, err := repo.Update(context.Background(), task.ID, &entity.UpdateTaskRequest{Assignee: &user})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if id, ok := updated.Assignee.UserID(); !ok || id != cookID {
		t.Errorf("Assignee = %s, want user:%d", updated.Assignee, cookID)
	}
	if _, ok := updated.Assignee.Sector(); ok {
		t.Error("sector must be cleared after reassigning to a user")
	}
}

func TestTaskRepository_UpdateCompletedIsRejected(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	task := createTask(t, repo, entity.AssignUser(cookID), nil)

	if _, err := repo.Complete(ctx, task.ID, cookID, &entity.CompleteTaskRequest{}, time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	title := "Новое название"
	updated, err := repo.Update(ctx, task.ID, &entity.UpdateTaskRequest{Title: &title})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated != nil {
		t.Error("Update() of a completed task must return nil")
	}
}

func TestTaskRepository_CompleteSectorTaskBindsExecutor(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	task := createTask(t, repo, entity.AssignSector(entity.SectorKitchen), nil)
	at := time.Now().Truncate(time.Millisecond)

	done, err := repo.Complete(ctx, task.ID, cookID, &entity.CompleteTaskRequest{
		Comment:  "  готово  ",
		PhotoIDs: []string{"photo-1", "photo-2"},
	}, at)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != entity.StatusCompleted {
		t.Errorf("Status = %s, want completed", done.Status)
	}
	if id, ok := done.Assignee.UserID(); !ok || id != cookID {
		t.Errorf("Assignee = %s, want user:%d", done.Assignee, cookID)
	}
	if done.Comment == nil || *done.Comment != "готово" {
		t.Errorf("Comment = %v, want готово", done.Comment)
	}
	if len(done.PhotoIDs) != 2 {
		t.Errorf("PhotoIDs = %v, want 2 items", done.PhotoIDs)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(at) {
		t.Errorf("CompletedAt = %v, want %v", done.CompletedAt, at)
	}

	again, err := repo.Complete(ctx, task.ID, cookID, &entity.CompleteTaskRequest{}, at)
	if err != nil {
		t.Fatalf("second Complete() error = %v", err)
	}
	if again != nil {
		t.Error("second Complete() must not match a completed task")
	}
}

func TestTaskRepository_UpdateStatusForExpired(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	expired := createTask(t, repo, entity.AssignUser(cookID), &past)
	pending := createTask(t, repo, entity.AssignUser(cookID), &future)
	noDeadline := createTask(t, repo, entity.AssignUser(cookID), nil)

	flipped, err := repo.UpdateStatusForExpired(ctx, now)
	if err != nil {
		t.Fatalf("UpdateStatusForExpired() error = %v", err)
	}
	if flipped != 1 {
		t.Errorf("flipped = %d, want 1", flipped)
	}

	want := map[int]entity.TaskStatus{
		expired.ID:    entity.StatusOverdue,
		pending.ID:    entity.StatusActive,
		noDeadline.ID: entity.StatusActive,
	}
	for id, status := range want {
		got, _ := repo.GetByTaskId(ctx, id)
		if got.Status != status {
			t.Errorf("task %d status = %s, want %s", id, got.Status, status)
		}
	}

	flipped, err = repo.UpdateStatusForExpired(ctx, now)
	if err != nil || flipped != 0 {
		t.Errorf("second UpdateStatusForExpired() = %d, %v, want 0, nil", flipped, err)
	}
}

func TestTaskRepository_MarkNotifiedAndListings(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	now := time.Now()

	soon := now.Add(90 * time.Minute)
	later := now.Add(30 * time.Hour)
	a := createTask(t, repo, entity.AssignSector(entity.SectorKitchen), &soon)
	b := createTask(t, repo, entity.AssignUser(cookID), &later)

	upcoming, err := repo.ListUpcomingDeadlines(ctx, now, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListUpcomingDeadlines() error = %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].ID != a.ID {
		t.Fatalf("upcoming = %v, want [%d %d] ordered by deadline", upcoming, a.ID, b.ID)
	}

	err = repo.MarkNotified(ctx, map[entity.NotificationTier][]int{
		entity.TierTwoHours: {a.ID},
		entity.TierOneDay:   {b.ID},
	})
	if err != nil {
		t.Fatalf("MarkNotified() error = %v", err)
	}

	gotA, _ := repo.GetByTaskId(ctx, a.ID)
	if !gotA.Notified.TwoHours || gotA.Notified.OneDay {
		t.Errorf("task a flags = %+v, want only two_hours", gotA.Notified)
	}
	gotB, _ := repo.GetByTaskId(ctx, b.ID)
	if !gotB.Notified.OneDay || gotB.Notified.TwoHours {
		t.Errorf("task b flags = %+v, want only one_day", gotB.Notified)
	}

	mine, err := repo.ListForUser(ctx, cookID, ptr(entity.SectorKitchen))
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListForUser() = %d tasks, want 2 (personal + sector)", len(mine))
	}
	sector, _ := repo.ListBySector(ctx, entity.SectorKitchen)
	if len(sector) != 1 || sector[0].ID != a.ID {
		t.Errorf("ListBySector() = %v, want only task %d", sector, a.ID)
	}
}

func TestTaskRepository_MarkNotifiedUnknownTierRollsBack(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	task := createTask(t, repo, entity.AssignUser(cookID), nil)

	err := repo.MarkNotified(ctx, map[entity.NotificationTier][]int{
		entity.TierOverdue:             {task.ID},
		entity.NotificationTier("bad"): {task.ID},
	})
	if err == nil {
		t.Fatal("MarkNotified() with unknown tier must fail")
	}
	got, _ := repo.GetByTaskId(ctx, task.ID)
	if got.Notified.Overdue {
		t.Error("flags must not be persisted when the batch fails")
	}
}

func TestTaskRepository_Rework(t *testing.T) {
	store := openTestStore(t)
	repo := store.Tasks()
	ctx := context.Background()
	task := createTask(t, repo, entity.AssignSector(entity.SectorKitchen), nil)

	old, created, err := repo.Rework(ctx, task.ID, &entity.CreateTaskRequest{Title: "x", Assignee: entity.AssignUser(cookID)})
	if err != nil {
		t.Fatalf("Rework() of active task error = %v", err)
	}
	if old != nil || created != nil {
		t.Fatal("Rework() of an active task must not match")
	}

	if _, err := repo.Complete(ctx, task.ID, cookID, &entity.CompleteTaskRequest{}, time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	done, _ := repo.GetByTaskId(ctx, task.ID)
	req := entity.ReworkOf(done, &entity.ReworkTaskRequest{Note: "плохо вымыто"})

	old, created, err = repo.Rework(ctx, task.ID, req)
	if err != nil {
		t.Fatalf("Rework() error = %v", err)
	}
	if old.ID != task.ID {
		t.Errorf("old.ID = %d, want %d", old.ID, task.ID)
	}
	if created.ManagerID != managerID || created.Status != entity.StatusActive {
		t.Errorf("created = %+v, want active task of manager %d", created, managerID)
	}
	if gone, _ := repo.GetByTaskId(ctx, task.ID); gone != nil {
		t.Error("original task must be deleted by rework")
	}
}

func TestTaskRepository_SingleAssigneeConstraint(t *testing.T) {
	store := openTestStore(t)
	_, err := store.db.Exec(
		`INSERT INTO task (title, executor_id, sector, manager_id, created_at, updated_at) VALUES ('x', ?, 'bar', ?, 0, 0)`,
		cookID, managerID,
	)
	if err == nil {
		t.Fatal("schema must reject a task with both executor and sector")
	}
}

func TestTaskAuditRepository(t *testing.T) {
	store := openTestStore(t)
	audits := store.Audits()
	ctx := context.Background()

	changes := `{"title":"новое"}`
	first := &entity.TaskAudit{UserID: managerID, Action: entity.ActionCreate, EntityID: 7, ChangesAt: time.Now().Add(-time.Minute)}
	second := &entity.TaskAudit{UserID: managerID, Action: entity.ActionUpdate, EntityID: 7, Changes: &changes, ChangesAt: time.Now()}
	for _, a := range []*entity.TaskAudit{first, second} {
		if err := audits.Create(ctx, a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := audits.GetByTaskId(ctx, 7)
	if err != nil {
		t.Fatalf("GetByTaskId() error = %v", err)
	}
	if len(got) != 2 || got[0].Action != entity.ActionUpdate {
		t.Fatalf("GetByTaskId() = %+v, want newest first", got)
	}
	if got[0].Changes == nil || *got[0].Changes != changes {
		t.Errorf("Changes = %v, want %s", got[0].Changes, changes)
	}
}

func TestUserRepository_GetMissing(t *testing.T) {
	store := openTestStore(t)
	user, err := store.Users().GetById(context.Background(), 42)
	if err != nil || user != nil {
		t.Errorf("GetById(missing) = %v, %v, want nil, nil", user, err)
	}
}

func TestUserRepository_DeleteOrphansTasks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	task := createTask(t, store.Tasks(), entity.AssignUser(cookID), nil)

	deleted, err := store.Users().Delete(ctx, cookID)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v, want true, nil", deleted, err)
	}
	got, err := store.Tasks().GetByTaskId(ctx, task.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByTaskId() = %v, %v", got, err)
	}
	if !got.Assignee.IsUnassigned() {
		t.Errorf("Assignee = %s, want none after executor removal", got.Assignee)
	}

	deleted, err = store.Users().Delete(ctx, cookID)
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v, want false, nil", deleted, err)
	}
}

func ptr[T any](v T) *T { return &v }
