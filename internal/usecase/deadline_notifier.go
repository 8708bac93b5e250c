package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// TierWindow - окно [From, To) оставшегося до дедлайна времени, в котором срабатывает уровень.
type TierWindow struct {
	Tier entity.NotificationTier
	From time.Duration
	To   time.Duration
}

func (w TierWindow) Contains(left time.Duration) bool {
	return left >= w.From && left < w.To
}

// DefaultTierWindows: накануне [23ч, 25ч), в течение дня [2ч, 23ч), срочно [0, 2ч).
func DefaultTierWindows() []TierWindow {
	return []TierWindow{
		{Tier: entity.TierOneDay, From: 23 * time.Hour, To: 25 * time.Hour},
		{Tier: entity.TierToday, From: 2 * time.Hour, To: 23 * time.Hour},
		{Tier: entity.TierTwoHours, From: 0, To: 2 * time.Hour},
	}
}

// DeadlineNotifier - один проход планировщика напоминаний о сроках.
type DeadlineNotifier struct {
	tasks      repository.ITaskRepository
	resolver   *AssignmentResolver
	dispatcher *Dispatcher
	windows    []TierWindow
	lookahead  time.Duration
	loc        *time.Location
}

func NewDeadlineNotifier(
	tasks repository.ITaskRepository,
	users repository.IUserRepository,
	dispatcher *Dispatcher,
	windows []TierWindow,
	lookahead time.Duration,
	loc *time.Location,
) (*DeadlineNotifier, error) {
	if len(windows) == 0 {
		windows = DefaultTierWindows()
	}
	windows = append([]TierWindow(nil), windows...)
	// проверяем от большего запаса времени к меньшему
	sort.Slice(windows, func(i, j int) bool { return windows[i].From > windows[j].From })

	for i, w := range windows {
		if w.From < 0 || w.From >= w.To {
			return nil, fmt.Errorf("tier %s: empty window [%s, %s)", w.Tier, w.From, w.To)
		}
		if i > 0 && w.To > windows[i-1].From {
			return nil, fmt.Errorf("tier %s overlaps tier %s", w.Tier, windows[i-1].Tier)
		}
	}
	if lookahead < windows[0].To {
		return nil, fmt.Errorf("lookahead %s is shorter than the largest window %s", lookahead, windows[0].To)
	}
	if loc == nil {
		loc = time.UTC
	}

	return &DeadlineNotifier{
		tasks:      tasks,
		resolver:   NewAssignmentResolver(users),
		dispatcher: dispatcher,
		windows:    windows,
		lookahead:  lookahead,
		loc:        loc,
	}, nil
}

// TierFor выбирает самый ранний по времени уровень, окно которого содержит остаток
// и флаг которого ещё не выставлен.
func (n *DeadlineNotifier) TierFor(task *entity.Task, now time.Time) (entity.NotificationTier, bool) {
	if task.Status != entity.StatusActive || !task.HasDeadline() || task.ExpiredAt(now) {
		return "", false
	}
	left := task.Deadline.Sub(now)
	for _, w := range n.windows {
		if w.Contains(left) && !task.Notified.Has(w.Tier) {
			return w.Tier, true
		}
	}
	return "", false
}

// Tick рассылает напоминания и одним пакетом сохраняет флаги.
// Возвращает число задач, по которым ушло напоминание.
func (n *DeadlineNotifier) Tick(ctx context.Context, now time.Time) (int, error) {
	tasks, err := n.tasks.ListUpcomingDeadlines(ctx, now, now.Add(n.lookahead))
	if err != nil {
		return 0, entity.Persistence("list upcoming deadlines", err)
	}

	marks := make(map[entity.NotificationTier][]int)
	fired := 0
	for i := range tasks {
		task := &tasks[i]
		tier, ok := n.TierFor(task, now)
		if !ok {
			continue
		}

		log := logging.Logger.WithFields(logrus.Fields{"task_id": task.ID, "tier": tier})
		recipients, err := n.resolver.Recipients(ctx, task.Assignee)
		if err != nil {
			// флаг не ставим, попробуем на следующем тике
			log.WithError(err).Error("Не удалось определить получателей напоминания")
			continue
		}
		if len(recipients) == 0 {
			log.Warn("Напоминание некому отправить")
		}

		delivered := n.dispatcher.Send(ctx, task.ID, entity.KindDeadline,
			deadlineReminderText(task, tier, n.loc), recipients)
		log.WithField("delivered", delivered).Info("Отправлено напоминание о дедлайне")

		marks[tier] = append(marks[tier], task.ID)
		fired++
	}

	if fired == 0 {
		return 0, nil
	}
	if err := n.tasks.MarkNotified(ctx, marks); err != nil {
		return fired, entity.Persistence("mark deadline notifications", err)
	}
	logging.Logger.Infof("Обновлены флаги уведомлений для %d задач(и)", fired)
	return fired, nil
}
