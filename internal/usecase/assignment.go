package usecase

import (
	"context"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
)

// AssignmentResolver превращает ответственного за задачу в конкретных получателей.
// Состав сектора читается заново при каждом вызове.
type AssignmentResolver struct {
	users repository.IUserRepository
}

func NewAssignmentResolver(users repository.IUserRepository) *AssignmentResolver {
	return &AssignmentResolver{users: users}
}

func (r *AssignmentResolver) Recipients(ctx context.Context, a entity.Assignee) ([]int64, error) {
	if id, ok := a.UserID(); ok {
		return []int64{id}, nil
	}
	sector, ok := a.Sector()
	if !ok {
		return nil, nil
	}

	members, err := r.users.ListBySector(ctx, sector)
	if err != nil {
		return nil, entity.Persistence("list sector members", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// CanComplete - отчитаться может исполнитель или любой участник назначенного сектора.
func (r *AssignmentResolver) CanComplete(task *entity.Task, user *entity.User) bool {
	if user == nil {
		return false
	}
	if id, ok := task.Assignee.UserID(); ok {
		return id == user.ID
	}
	if sector, ok := task.Assignee.Sector(); ok {
		return user.InSector(sector)
	}
	return false
}
