package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/jmoiron/sqlx"
)

type auditRow struct {
	ID         int            `db:"id"`
	UserID     int64          `db:"user_id"`
	Action     string         `db:"action"`
	EntityType string         `db:"entity_type"`
	EntityID   int            `db:"entity_id"`
	OldValues  sql.NullString `db:"old_values"`
	NewValues  sql.NullString `db:"new_values"`
	Changes    sql.NullString `db:"changes"`
	ChangedAt  int64          `db:"changed_at"`
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

type TaskAuditRepository struct {
	db *sqlx.DB
}

func (r *TaskAuditRepository) Create(ctx context.Context, audit *entity.TaskAudit) error {
	if audit.EntityType == "" {
		audit.EntityType = "task"
	}
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO task_audit (user_id, action, entity_type, entity_id, old_values, new_values, changes, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		audit.UserID,
		string(audit.Action),
		audit.EntityType,
		audit.EntityID,
		nullString(audit.OldValues),
		nullString(audit.NewValues),
		nullString(audit.Changes),
		toMillis(audit.ChangesAt),
	).Scan(&audit.ID)
}

func (r *TaskAuditRepository) GetByTaskId(ctx context.Context, taskId int) ([]entity.TaskAudit, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, action, entity_type, entity_id, old_values, new_values, changes, changed_at
		FROM task_audit
		WHERE entity_id = ? AND entity_type = 'task'
		ORDER BY changed_at DESC, id DESC`, taskId)
	if err != nil {
		return nil, err
	}

	audits := make([]entity.TaskAudit, 0, len(rows))
	for _, row := range rows {
		audits = append(audits, entity.TaskAudit{
			ID:         row.ID,
			UserID:     row.UserID,
			Action:     entity.ActionType(row.Action),
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			OldValues:  stringPtr(row.OldValues),
			NewValues:  stringPtr(row.NewValues),
			Changes:    stringPtr(row.Changes),
			ChangesAt:  time.UnixMilli(row.ChangedAt),
		})
	}
	return audits, nil
}
