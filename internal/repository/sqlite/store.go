// Package sqlite - встроенное хранилище задач для запуска одним бинарником и для тестов.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store владеет соединением и отдаёт репозитории поверх него.
type Store struct {
	db *sqlx.DB
}

// Open открывает (или создаёт) базу по пути, ":memory:" - база в памяти.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// одно соединение: sqlite всё равно пишет последовательно, а :memory: живёт в соединении
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Tasks() *TaskRepository {
	return &TaskRepository{db: s.db}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

func (s *Store) Audits() *TaskAuditRepository {
	return &TaskAuditRepository{db: s.db}
}

// время хранится в миллисекундах unix, чтобы сравнения в SQL были числовыми
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
