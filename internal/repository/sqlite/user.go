package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/jmoiron/sqlx"
)

type userRow struct {
	ID        int64          `db:"id"`
	FullName  string         `db:"full_name"`
	Role      string         `db:"role"`
	Position  string         `db:"position"`
	Sector    sql.NullString `db:"sector"`
	CreatedAt int64          `db:"created_at"`
}

func (r *userRow) toEntity() entity.User {
	user := entity.User{
		ID:        r.ID,
		FullName:  r.FullName,
		Role:      entity.UserRole(r.Role),
		Position:  r.Position,
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
	if r.Sector.Valid {
		s := entity.Sector(r.Sector.String)
		user.Sector = &s
	}
	return user
}

type UserRepository struct {
	db *sqlx.DB
}

// Save добавляет пользователя или обновляет его профиль по telegram id.
func (r *UserRepository) Save(ctx context.Context, user *entity.User) error {
	var sector sql.NullString
	if user.Sector != nil {
		sector = sql.NullString{String: string(*user.Sector), Valid: true}
	}
	if user.Role == "" {
		user.Role = entity.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, role, position, sector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role,
			position = excluded.position,
			sector = excluded.sector`,
		user.ID, user.FullName, string(user.Role), user.Position, sector, toMillis(user.CreatedAt),
	)
	return err
}

func (r *UserRepository) GetById(ctx context.Context, id int64) (*entity.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, full_name, role, position, sector, created_at FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user := row.toEntity()
	return &user, nil
}

func (r *UserRepository) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.User, error) {
	var rows []userRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, full_name, role, position, sector, created_at FROM users WHERE sector = ? ORDER BY id`,
		string(sector))
	if err != nil {
		return nil, err
	}

	users := make([]entity.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toEntity())
	}
	return users, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
