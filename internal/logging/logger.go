// Package logging - общий logrus-логгер сервиса.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger - глобальный экземпляр, до Init пишет текстом в stderr.
var Logger = logrus.New()

type Config struct {
	Level  string
	Format string // text | json
	File   string // пусто - только stderr

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init настраивает Logger: уровень, формат и ротацию файла через lumberjack.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	if cfg.File == "" {
		Logger.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return err
	}
	logFile := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, logFile))
	Logger.Infof("Логгер инициализирован, файл: %s", cfg.File)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Task возвращает запись с полем task_id.
func Task(id int) *logrus.Entry {
	return Logger.WithField("task_id", id)
}
