package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/St1cky1/restaurant-task-service/internal/api"
	"github.com/St1cky1/restaurant-task-service/internal/config"
	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/infrastructure/auth"
	"github.com/St1cky1/restaurant-task-service/internal/infrastructure/client"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
	"github.com/St1cky1/restaurant-task-service/internal/repository/sqlite"
	"github.com/St1cky1/restaurant-task-service/internal/usecase"
	"github.com/St1cky1/restaurant-task-service/internal/worker"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "файл с переменными окружения")
	migrationsDir := pflag.String("migrations", "migrations", "каталог миграций PostgreSQL")
	issueToken := pflag.Int64("issue-token", 0, "выпустить access token для telegram id и выйти")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Logger.Fatalf("Ошибка конфигурации: %v", err)
	}
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		logging.Logger.Fatalf("Ошибка инициализации логгера: %v", err)
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		logging.Logger.Fatalf("Ошибка настройки JWT: %v", err)
	}
	if *issueToken != 0 {
		token, err := jwtManager.GenerateAccessToken(*issueToken)
		if err != nil {
			logging.Logger.Fatalf("Не удалось выпустить токен: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, jwtManager, *migrationsDir); err != nil {
		logging.Logger.Fatalf("Сервис остановлен с ошибкой: %v", err)
	}
	logging.Logger.Info("Приложение завершено корректно")
}

type storage struct {
	tasks  repository.ITaskRepository
	users  repository.IUserRepository
	audits repository.ITaskAuditRepository
	close  func()
}

func run(ctx context.Context, cfg *config.Config, jwtManager *auth.JWTManager, migrationsDir string) error {
	store, err := openStorage(ctx, cfg, migrationsDir)
	if err != nil {
		return err
	}
	defer store.close()

	var wg sync.WaitGroup
	defer wg.Wait()
	// воркеры останавливаются раньше, чем run дождётся их завершения
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	startWorker := func(name string, start func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx); err != nil {
				logging.Logger.WithError(err).Errorf("%s остановлен с ошибкой", name)
			}
		}()
	}

	var (
		notifier       usecase.Notifier
		auditPublisher usecase.AuditPublisher
	)
	sender, err := client.NewTelegramSender(cfg.Telegram)
	if err != nil {
		return err
	}

	switch cfg.Notifier.Mode {
	case "direct":
		// без брокера: telegram напрямую, аудит пишется сразу в БД
		notifier = sender
		auditPublisher = worker.NewAuditWorker(nil, store.audits)
	default:
		rabbitMQ, err := client.NewRabbitMQClient(cfg.RabbitMQ.URL())
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()

		notifier = rabbitMQ
		auditPublisher = rabbitMQ
		startWorker("Audit Worker", worker.NewAuditWorker(rabbitMQ, store.audits).Start)
		startWorker("Notification Worker", worker.NewNotificationWorker(rabbitMQ, sender).Start)
	}

	loc := cfg.Location()
	dispatcher := usecase.NewDispatcher(notifier, cfg.Notifier.Concurrency)
	taskService := usecase.NewTaskService(store.tasks, store.users, store.audits, dispatcher, auditPublisher, loc)

	deadlines, err := usecase.NewDeadlineNotifier(store.tasks, store.users, dispatcher,
		tierWindows(cfg.Watcher), cfg.Watcher.Lookahead, loc)
	if err != nil {
		return err
	}
	overdue := usecase.NewOverdueEscalator(store.tasks, store.users, dispatcher)

	watcher := worker.NewTaskWatcher(overdue, deadlines, cfg.Watcher.Interval)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(taskService, jwtManager),
	}
	serveErr := make(chan error, 1)
	go func() {
		logging.Logger.Infof("HTTP API слушает %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logging.Logger.Info("Завершение работы...")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.WithError(err).Warn("HTTP сервер остановлен не полностью")
	}
	return nil
}

func tierWindows(w config.WatcherConfig) []usecase.TierWindow {
	return []usecase.TierWindow{
		{Tier: entity.TierOneDay, From: config.Hours(w.OneDayFrom), To: config.Hours(w.OneDayTo)},
		{Tier: entity.TierToday, From: config.Hours(w.TodayFrom), To: config.Hours(w.OneDayFrom)},
		{Tier: entity.TierTwoHours, From: 0, To: config.Hours(w.TwoHoursWithin)},
	}
}

func openStorage(ctx context.Context, cfg *config.Config, migrationsDir string) (*storage, error) {
	if cfg.DB.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		store, err := sqlite.Open(cfg.DB.SQLitePath)
		if err != nil {
			return nil, err
		}
		logging.Logger.WithField("path", cfg.DB.SQLitePath).Info("Используется SQLite")
		return &storage{
			tasks:  store.Tasks(),
			users:  store.Users(),
			audits: store.Audits(),
			close:  func() { store.Close() },
		}, nil
	}

	// Запускаем миграции
	if err := runMigrations(migrationsDir, cfg.DB.URL()); err != nil {
		return nil, err
	}
	pg, err := client.NewPostgresClient(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	return &storage{
		tasks:  repository.NewTaskRepository(pg.Pool),
		users:  repository.NewUserRepository(pg.Pool),
		audits: repository.NewTaskAuditRepository(pg.Pool),
		close:  pg.Close,
	}, nil
}

func runMigrations(dir, dbURL string) error {
	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка создания мигратора: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %w", err)
	}
	logging.Logger.Info("Миграции выполнены успешно")
	return nil
}
