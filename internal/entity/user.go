package entity

import "time"

type UserRole string

const (
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"
)

// User - сотрудник, идентифицируется telegram id.
type User struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Role      UserRole  `json:"role"`
	Position  string    `json:"position,omitempty"`
	Sector    *Sector   `json:"sector,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) IsManager() bool {
	return u != nil && u.Role == RoleManager
}

// InSector проверяет членство пользователя в секторе.
func (u *User) InSector(s Sector) bool {
	return u != nil && u.Sector != nil && *u.Sector == s
}

// JWT Claims
type JWTClaims struct {
	UserID int64 `json:"user_id"`
}
