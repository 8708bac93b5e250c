package repository

import (
	"context"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var (
		user   entity.User
		sector *string
	)
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Role,
		&user.Position,
		&sector,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sector != nil {
		s := entity.Sector(*sector)
		user.Sector = &s
	}
	return &user, nil
}

// получаем данные по telegram id
func (r *UserRepository) GetById(ctx context.Context, id int64) (*entity.User, error) {
	query := `
	SELECT id, full_name, role, position, sector, created_at
	FROM "user"
	WHERE id = $1
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListBySector - участники сектора на текущий момент, без кэша
func (r *UserRepository) ListBySector(ctx context.Context, sector entity.Sector) ([]entity.User, error) {
	query := `
	SELECT id, full_name, role, position, sector, created_at
	FROM "user"
	WHERE sector = $1
	ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, sector)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM "user" WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
