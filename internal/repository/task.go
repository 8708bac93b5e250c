package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, title, description, executor_id, sector, manager_id, deadline, status,
	comment, photo_ids, notified_one_day, notified_today, notified_two_hours, notified_overdue,
	created_at, updated_at, completed_at`

// querier - общее у пула и транзакции.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{
		db: db,
	}
}

func scanTask(row pgx.Row) (*entity.Task, error) {
	var (
		task       entity.Task
		executorID *int64
		sector     *string
	)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&executorID,
		&sector,
		&task.ManagerID,
		&task.Deadline,
		&task.Status,
		&task.Comment,
		&task.PhotoIDs,
		&task.Notified.OneDay,
		&task.Notified.Today,
		&task.Notified.TwoHours,
		&task.Notified.Overdue,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Assignee = entity.AssigneeFromColumns(executorID, sector)
	return &task, nil
}

// scanOptional превращает pgx.ErrNoRows в (nil, nil).
func scanOptional(row pgx.Row) (*entity.Task, error) {
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

func insertTask(ctx context.Context, q querier, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	query := `
	INSERT INTO task (title, description, executor_id, sector, manager_id, deadline, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + taskColumns

	executorID, sector := req.Assignee.Columns()
	return scanTask(q.QueryRow(ctx, query,
		req.Title,
		req.Description,
		executorID,
		sector,
		managerID,
		req.Deadline,
		entity.StatusActive,
	))
}

func (r *TaskRepository) Create(ctx context.Context, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	return insertTask(ctx, r.db, managerID, req)
}

func (r *TaskRepository) GetByTaskId(ctx context.Context, taskId int) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE id = $1`
	return scanOptional(r.db.QueryRow(ctx, query, taskId))
}

// Update - обновление полей задачи, SET собирается динамически
func (r *TaskRepository) Update(ctx context.Context, id int, req *entity.UpdateTaskRequest) (*entity.Task, error) {
	setClause := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		setClause = append(setClause, column+" = $"+strconv.Itoa(len(args)))
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Deadline != nil {
		set("deadline", *req.Deadline)
	}
	if req.ClearDeadline {
		setClause = append(setClause, "deadline = NULL")
	}
	if req.Assignee != nil {
		// исполнитель и сектор всегда пишутся парой, второй становится NULL
		executorID, sector := req.Assignee.Columns()
		set("executor_id", executorID)
		set("sector", sector)
	}
	if len(setClause) == 0 {
		return nil, entity.ErrNoFieldsToUpdate
	}
	setClause = append(setClause, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, id, entity.StatusCompleted)
	query := `
	UPDATE task
	SET ` + strings.Join(setClause, ", ") + `
	WHERE id = $` + strconv.Itoa(len(args)-1) + ` AND status <> $` + strconv.Itoa(len(args)) + `
	RETURNING ` + taskColumns

	return scanOptional(r.db.QueryRow(ctx, query, args...))
}

func (r *TaskRepository) Complete(ctx context.Context, id int, executorID int64, report *entity.CompleteTaskRequest, at time.Time) (*entity.Task, error) {
	query := `
	UPDATE task
	SET status = $2,
	    completed_at = $3,
	    comment = $4,
	    photo_ids = $5,
	    executor_id = COALESCE(executor_id, $6),
	    sector = NULL,
	    updated_at = CURRENT_TIMESTAMP
	WHERE id = $1 AND status IN ($7, $8)
	RETURNING ` + taskColumns

	var comment *string
	if c := strings.TrimSpace(report.Comment); c != "" {
		comment = &c
	}
	photos := report.PhotoIDs
	if photos == nil {
		photos = []string{}
	}

	return scanOptional(r.db.QueryRow(ctx, query,
		id,
		entity.StatusCompleted,
		at,
		comment,
		photos,
		executorID,
		entity.StatusActive,
		entity.StatusOverdue,
	))
}

// Delete - удаление задачи, возвращает удалённую строку
func (r *TaskRepository) Delete(ctx context.Context, id int) (*entity.Task, error) {
	query := `DELETE FROM task WHERE id = $1 RETURNING ` + taskColumns
	return scanOptional(r.db.QueryRow(ctx, query, id))
}

func (r *TaskRepository) DeleteCompleted(ctx context.Context, id int) (*entity.Task, error) {
	query := `DELETE FROM task WHERE id = $1 AND status = $2 RETURNING ` + taskColumns
	return scanOptional(r.db.QueryRow(ctx, query, id, entity.StatusCompleted))
}

func (r *TaskRepository) Rework(ctx context.Context, id int, req *entity.CreateTaskRequest) (*entity.Task, *entity.Task, error) {
	var old, created *entity.Task

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		query := `DELETE FROM task WHERE id = $1 AND status = $2 RETURNING ` + taskColumns
		old, err = scanOptional(tx.QueryRow(ctx, query, id, entity.StatusCompleted))
		if err != nil || old == nil {
			return err
		}
		created, err = insertTask(ctx, tx, old.ManagerID, req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return old, created, nil
}

func (r *TaskRepository) UpdateStatusForExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
	UPDATE task
	SET status = $1, updated_at = CURRENT_TIMESTAMP
	WHERE status = $2 AND deadline IS NOT NULL AND deadline < $3
	`
	tag, err := r.db.Exec(ctx, query, entity.StatusOverdue, entity.StatusActive, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkNotified - все флаги за тик одной транзакцией
func (r *TaskRepository) MarkNotified(ctx context.Context, marks map[entity.NotificationTier][]int) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for tier, ids := range marks {
			column := tier.Column()
			if column == "" {
				return fmt.Errorf("unknown notification tier %q", tier)
			}
			if len(ids) == 0 {
				continue
			}
			query := `UPDATE task SET ` + column + ` = TRUE WHERE id = ANY($1) AND ` + column + ` = FALSE`
			if _, err := tx.Exec(ctx, query, ids); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TaskRepository) list(ctx context.Context, where string, args ...any) ([]entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE ` + where + ` ORDER BY deadline NULLS LAST, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []entity.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) ListOpen(ctx context.Context) ([]entity.Task, error) {
	return r.list(ctx, `status IN ($1, $2)`, entity.StatusActive, entity.StatusOverdue)
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status entity.TaskStatus) ([]entity.Task, error) {
	return r.list(ctx, `status = $1`, status)
}

func (r *TaskRepository) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.Task, error) {
	return r.list(ctx, `sector = $1`, sector)
}

func (r *TaskRepository) ListForUser(ctx context.Context, userID int64, sector *entity.Sector) ([]entity.Task, error) {
	if sector == nil {
		return r.list(ctx, `executor_id = $1 AND status <> $2`, userID, entity.StatusCompleted)
	}
	return r.list(ctx, `(executor_id = $1 OR sector = $2) AND status <> $3`, userID, *sector, entity.StatusCompleted)
}

func (r *TaskRepository) ListOverdueUnnotified(ctx context.Context) ([]entity.Task, error) {
	return r.list(ctx, `status = $1 AND notified_overdue = FALSE`, entity.StatusOverdue)
}

func (r *TaskRepository) ListUpcomingDeadlines(ctx context.Context, from, to time.Time) ([]entity.Task, error) {
	return r.list(ctx, `status = $1 AND deadline IS NOT NULL AND deadline >= $2 AND deadline <= $3`,
		entity.StatusActive, from, to)
}
