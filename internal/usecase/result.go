package usecase

import (
	"errors"
	"strings"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
)

// Result - ответ операции для диалогового интерфейса: успех и текст для пользователя.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ResultOf(err error, okMessage string) Result {
	if err == nil {
		return Result{Success: true, Message: okMessage}
	}
	return Result{Success: false, Message: FailureMessage(err)}
}

func FailureMessage(err error) string {
	switch {
	case errors.Is(err, entity.ErrTaskNotFound):
		return "Задача не найдена"
	case errors.Is(err, entity.ErrUserNotFound):
		return "Пользователь не найден"
	case errors.Is(err, entity.ErrForbidden):
		return "Недостаточно прав для этого действия"
	case errors.Is(err, entity.ErrInvalidTransition):
		return "Действие недоступно для задачи в текущем статусе"
	case errors.Is(err, entity.ErrNoFieldsToUpdate):
		return "Нет изменений для сохранения"
	case errors.Is(err, entity.ErrInvalidTaskData):
		return "Некорректные данные: " + detail(err, entity.ErrInvalidTaskData)
	default:
		return "Не удалось выполнить операцию, попробуйте позже"
	}
}

// detail отрезает текст сентинела, оставляя пояснение из обёртки.
func detail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}
