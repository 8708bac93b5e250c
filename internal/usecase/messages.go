package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
)

const (
	noDeadlineText  = "без срока"
	unknownAssignee = "неизвестно"
	reminderDescLen = 100
)

var sectorDative = map[entity.Sector]string{
	entity.SectorBar:     "бару",
	entity.SectorHall:    "залу",
	entity.SectorKitchen: "кухне",
}

var tierTimeframes = map[entity.NotificationTier]string{
	entity.TierOneDay:   "завтра",
	entity.TierToday:    "сегодня",
	entity.TierTwoHours: "меньше чем через 2 часа",
}

func formatDeadline(deadline *time.Time, loc *time.Location) string {
	if deadline == nil {
		return noDeadlineText
	}
	return deadline.In(loc).Format(entity.ManualDeadlineLayout)
}

func taskCard(header string, task *entity.Task, loc *time.Location) string {
	return fmt.Sprintf("%s\nНазвание: %s\nОписание: %s\nДедлайн: %s",
		header, task.Title, task.Description, formatDeadline(task.Deadline, loc))
}

// newTaskText - карточка новой (или пересозданной на доработку) задачи.
func newTaskText(task *entity.Task, loc *time.Location) string {
	if s, ok := task.Assignee.Sector(); ok {
		return taskCard(fmt.Sprintf("Всему %s назначена новая задача:", sectorDative[s]), task, loc)
	}
	return taskCard("Вам назначена новая задача:", task, loc)
}

func updatedTaskText(task *entity.Task, loc *time.Location) string {
	if s, ok := task.Assignee.Sector(); ok {
		return taskCard(fmt.Sprintf("Всему %s назначена задача (изменена):", sectorDative[s]), task, loc)
	}
	return taskCard("Вам назначена задача (изменена):", task, loc)
}

func reassignedText(old *entity.Task) string {
	if _, ok := old.Assignee.Sector(); ok {
		return fmt.Sprintf("Задача \"%s\" была переназначена с вашего сектора.", old.Title)
	}
	return fmt.Sprintf("Задача \"%s\" была переназначена.", old.Title)
}

func deletedTaskText(task *entity.Task) string {
	if _, ok := task.Assignee.Sector(); ok {
		return fmt.Sprintf("Задача \"%s\", назначенная вашему сектору, была удалена.", task.Title)
	}
	return fmt.Sprintf("Задача \"%s\" была удалена.", task.Title)
}

func orphanedTaskText(task *entity.Task, removed *entity.User) string {
	return fmt.Sprintf("Сотрудник %s удалён. Задача \"%s\" осталась без ответственного, назначьте нового исполнителя.",
		executorLabel(removed), task.Title)
}

func executorLabel(user *entity.User) string {
	if user == nil {
		return unknownAssignee
	}
	if user.Position == "" {
		return user.FullName
	}
	return fmt.Sprintf("%s (%s)", user.FullName, user.Position)
}

// completedTaskText - отчёт менеджеру о выполнении.
func completedTaskText(task *entity.Task, executor *entity.User, loc *time.Location) string {
	comment := "Комментарий не был оставлен"
	if task.Comment != nil && *task.Comment != "" {
		comment = *task.Comment
	}
	completedAt := "неизвестно"
	if task.CompletedAt != nil {
		completedAt = task.CompletedAt.In(loc).Format(entity.ManualDeadlineLayout)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Задача выполнена: «%s»\n", task.Title)
	fmt.Fprintf(&b, "Сотрудник: %s\n", executorLabel(executor))
	fmt.Fprintf(&b, "Выполнено: %s\n", completedAt)
	fmt.Fprintf(&b, "Комментарий:\n%s", comment)
	if n := len(task.PhotoIDs); n > 0 {
		fmt.Fprintf(&b, "\nФото: %d", n)
	}
	return b.String()
}

func deadlineReminderText(task *entity.Task, tier entity.NotificationTier, loc *time.Location) string {
	desc := []rune(task.Description)
	description := task.Description
	if len(desc) > reminderDescLen {
		description = string(desc[:reminderDescLen]) + "..."
	}
	return fmt.Sprintf("⏰ Уведомление о дедлайне!\nЗадача: %s\nДедлайн: %s (%s)\nОписание: %s",
		task.Title, tierTimeframes[tier], formatDeadline(task.Deadline, loc), description)
}

// overdueManagerText - эскалация менеджеру, assignee уже расшифрован в текст.
func overdueManagerText(task *entity.Task, assignee string) string {
	return fmt.Sprintf("⚠️ Задача просрочена!\nЗадача: %s\nНазначена: %s\nПожалуйста, примите меры.",
		task.Title, assignee)
}

func overdueText(task *entity.Task) string {
	text := fmt.Sprintf("⚠️ Задача просрочена!\nЗадача: %s", task.Title)
	if s, ok := task.Assignee.Sector(); ok {
		text += fmt.Sprintf("\n(Для сектора: %s)", s.Title())
	}
	return text
}
