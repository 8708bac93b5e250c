package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, title, description, executor_id, sector, manager_id, deadline, status,
	comment, photo_ids, notified_one_day, notified_today, notified_two_hours, notified_overdue,
	created_at, updated_at, completed_at`

type taskRow struct {
	ID               int            `db:"id"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	ExecutorID       sql.NullInt64  `db:"executor_id"`
	Sector           sql.NullString `db:"sector"`
	ManagerID        int64          `db:"manager_id"`
	Deadline         sql.NullInt64  `db:"deadline"`
	Status           string         `db:"status"`
	Comment          sql.NullString `db:"comment"`
	PhotoIDs         string         `db:"photo_ids"`
	NotifiedOneDay   bool           `db:"notified_one_day"`
	NotifiedToday    bool           `db:"notified_today"`
	NotifiedTwoHours bool           `db:"notified_two_hours"`
	NotifiedOverdue  bool           `db:"notified_overdue"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
	CompletedAt      sql.NullInt64  `db:"completed_at"`
}

func (r *taskRow) toEntity() (*entity.Task, error) {
	task := &entity.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		ManagerID:   r.ManagerID,
		Deadline:    fromNullMillis(r.Deadline),
		Status:      entity.TaskStatus(r.Status),
		Notified: entity.NotificationFlags{
			OneDay:   r.NotifiedOneDay,
			Today:    r.NotifiedToday,
			TwoHours: r.NotifiedTwoHours,
			Overdue:  r.NotifiedOverdue,
		},
		CreatedAt:   time.UnixMilli(r.CreatedAt),
		UpdatedAt:   time.UnixMilli(r.UpdatedAt),
		CompletedAt: fromNullMillis(r.CompletedAt),
	}

	var executorID *int64
	if r.ExecutorID.Valid {
		executorID = &r.ExecutorID.Int64
	}
	var sector *string
	if r.Sector.Valid {
		sector = &r.Sector.String
	}
	task.Assignee = entity.AssigneeFromColumns(executorID, sector)

	if r.Comment.Valid {
		comment := r.Comment.String
		task.Comment = &comment
	}
	if r.PhotoIDs != "" && r.PhotoIDs != "[]" {
		if err := json.Unmarshal([]byte(r.PhotoIDs), &task.PhotoIDs); err != nil {
			return nil, fmt.Errorf("decoding photo_ids of task %d: %w", r.ID, err)
		}
	}
	return task, nil
}

// TaskRepository реализует repository.ITaskRepository поверх SQLite.
type TaskRepository struct {
	db *sqlx.DB
}

func getTask(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*entity.Task, error) {
	var row taskRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity()
}

func insertTask(ctx context.Context, q sqlx.QueryerContext, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	query := `
		INSERT INTO task (title, description, executor_id, sector, manager_id, deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + taskColumns

	executorID, sector := req.Assignee.Columns()
	now := toMillis(time.Now())
	task, err := getTask(ctx, q, query,
		req.Title, req.Description, executorID, sector, managerID,
		nullMillis(req.Deadline), string(entity.StatusActive), now, now,
	)
	if err == nil && task == nil {
		err = sql.ErrNoRows
	}
	return task, err
}

func (r *TaskRepository) Create(ctx context.Context, managerID int64, req *entity.CreateTaskRequest) (*entity.Task, error) {
	return insertTask(ctx, r.db, managerID, req)
}

func (r *TaskRepository) GetByTaskId(ctx context.Context, taskId int) (*entity.Task, error) {
	return getTask(ctx, r.db, `SELECT `+taskColumns+` FROM task WHERE id = ?`, taskId)
}

func (r *TaskRepository) Update(ctx context.Context, id int, req *entity.UpdateTaskRequest) (*entity.Task, error) {
	var (
		setClause []string
		args      []any
	)
	set := func(column string, value any) {
		setClause = append(setClause, column+" = ?")
		args = append(args, value)
	}

	if req.Title != nil {
		set("title", *req.Title)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Deadline != nil {
		set("deadline", toMillis(*req.Deadline))
	}
	if req.ClearDeadline {
		setClause = append(setClause, "deadline = NULL")
	}
	if req.Assignee != nil {
		executorID, sector := req.Assignee.Columns()
		set("executor_id", executorID)
		set("sector", sector)
	}
	if len(setClause) == 0 {
		return nil, entity.ErrNoFieldsToUpdate
	}
	set("updated_at", toMillis(time.Now()))

	args = append(args, id, string(entity.StatusCompleted))
	query := `UPDATE task SET ` + strings.Join(setClause, ", ") +
		` WHERE id = ? AND status <> ? RETURNING ` + taskColumns
	return getTask(ctx, r.db, query, args...)
}

func (r *TaskRepository) Complete(ctx context.Context, id int, executorID int64, report *entity.CompleteTaskRequest, at time.Time) (*entity.Task, error) {
	var comment sql.NullString
	if c := strings.TrimSpace(report.Comment); c != "" {
		comment = sql.NullString{String: c, Valid: true}
	}
	photos := report.PhotoIDs
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE task
		SET status = ?, completed_at = ?, comment = ?, photo_ids = ?,
		    executor_id = COALESCE(executor_id, ?), sector = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
		RETURNING ` + taskColumns
	return getTask(ctx, r.db, query,
		string(entity.StatusCompleted), toMillis(at), comment, string(photosJSON),
		executorID, toMillis(time.Now()),
		id, string(entity.StatusActive), string(entity.StatusOverdue),
	)
}

func (r *TaskRepository) Delete(ctx context.Context, id int) (*entity.Task, error) {
	return getTask(ctx, r.db, `DELETE FROM task WHERE id = ? RETURNING `+taskColumns, id)
}

func (r *TaskRepository) DeleteCompleted(ctx context.Context, id int) (*entity.Task, error) {
	return getTask(ctx, r.db, `DELETE FROM task WHERE id = ? AND status = ? RETURNING `+taskColumns,
		id, string(entity.StatusCompleted))
}

func (r *TaskRepository) Rework(ctx context.Context, id int, req *entity.CreateTaskRequest) (*entity.Task, *entity.Task, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := getTask(ctx, tx, `DELETE FROM task WHERE id = ? AND status = ? RETURNING `+taskColumns,
		id, string(entity.StatusCompleted))
	if err != nil || old == nil {
		return nil, nil, err
	}
	created, err := insertTask(ctx, tx, old.ManagerID, req)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return old, created, nil
}

func (r *TaskRepository) UpdateStatusForExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE task SET status = ?, updated_at = ? WHERE status = ? AND deadline IS NOT NULL AND deadline < ?`,
		string(entity.StatusOverdue), toMillis(time.Now()), string(entity.StatusActive), toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TaskRepository) MarkNotified(ctx context.Context, marks map[entity.NotificationTier][]int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for tier, ids := range marks {
		column := tier.Column()
		if column == "" {
			return fmt.Errorf("unknown notification tier %q", tier)
		}
		if len(ids) == 0 {
			continue
		}
		query, args, err := sqlx.In(`UPDATE task SET `+column+` = 1 WHERE id IN (?) AND `+column+` = 0`, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("marking %s: %w", column, err)
		}
	}
	return tx.Commit()
}

func (r *TaskRepository) list(ctx context.Context, where string, args ...any) ([]entity.Task, error) {
	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM task WHERE ` + where + ` ORDER BY deadline IS NULL, deadline, id`
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	tasks := make([]entity.Task, 0, len(rows))
	for i := range rows {
		task, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func (r *TaskRepository) ListOpen(ctx context.Context) ([]entity.Task, error) {
	return r.list(ctx, `status IN (?, ?)`, string(entity.StatusActive), string(entity.StatusOverdue))
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status entity.TaskStatus) ([]entity.Task, error) {
	return r.list(ctx, `status = ?`, string(status))
}

func (r *TaskRepository) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.Task, error) {
	return r.list(ctx, `sector = ?`, string(sector))
}

func (r *TaskRepository) ListForUser(ctx context.Context, userID int64, sector *entity.Sector) ([]entity.Task, error) {
	if sector == nil {
		return r.list(ctx, `executor_id = ? AND status <> ?`, userID, string(entity.StatusCompleted))
	}
	return r.list(ctx, `(executor_id = ? OR sector = ?) AND status <> ?`,
		userID, string(*sector), string(entity.StatusCompleted))
}

func (r *TaskRepository) ListOverdueUnnotified(ctx context.Context) ([]entity.Task, error) {
	return r.list(ctx, `status = ? AND notified_overdue = 0`, string(entity.StatusOverdue))
}

func (r *TaskRepository) ListUpcomingDeadlines(ctx context.Context, from, to time.Time) ([]entity.Task, error) {
	return r.list(ctx, `status = ? AND deadline IS NOT NULL AND deadline >= ? AND deadline <= ?`,
		string(entity.StatusActive), toMillis(from), toMillis(to))
}
