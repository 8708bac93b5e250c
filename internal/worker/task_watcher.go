package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/sirupsen/logrus"
)

// Ticker - один проход фоновой проверки.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (int, error)
}

var ErrWatcherRunning = errors.New("task watcher already running")

// TaskWatcher - единственный фоновый цикл по задачам: в каждом тике сначала просрочки,
// затем напоминания о сроках. Проходы никогда не пересекаются.
type TaskWatcher struct {
	overdue   Ticker
	deadlines Ticker
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTaskWatcher(overdue, deadlines Ticker, interval time.Duration) *TaskWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TaskWatcher{
		overdue:   overdue,
		deadlines: deadlines,
		interval:  interval,
		now:       time.Now,
	}
}

// Start запускает цикл в отдельной горутине, первый тик выполняется сразу.
func (w *TaskWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWatcherRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	logging.Logger.WithField("interval", w.interval).Info("Task watcher запущен")
	return nil
}

// Stop прерывает ожидание следующего тика и ждёт выхода из цикла.
// Повторный вызов безопасен.
func (w *TaskWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Logger.Info("Task watcher остановлен")
}

func (w *TaskWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет один тик. Ошибки и паники логируются и наружу не выходят.
func (w *TaskWatcher) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := w.now()
	w.step(ctx, "overdue", w.overdue, now)
	w.step(ctx, "deadlines", w.deadlines, now)
}

func (w *TaskWatcher) step(ctx context.Context, name string, t Ticker, now time.Time) {
	log := logging.Logger.WithField("step", name)
	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).Error("Паника в фоновой проверке задач")
		}
	}()

	n, err := t.Tick(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).Error("Ошибка фоновой проверки задач")
		return
	}
	if n > 0 {
		log.WithFields(logrus.Fields{"tasks": n}).Info("Фоновая проверка выполнена")
	}
}
