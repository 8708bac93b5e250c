package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watcher.Interval != time.Minute {
		t.Errorf("Watcher.Interval = %s, want 1m", cfg.Watcher.Interval)
	}
	if cfg.Watcher.Lookahead != 48*time.Hour {
		t.Errorf("Watcher.Lookahead = %s, want 48h", cfg.Watcher.Lookahead)
	}
	if cfg.Timezone != "Asia/Krasnoyarsk" {
		t.Errorf("Timezone = %s, want Asia/Krasnoyarsk", cfg.Timezone)
	}
	if cfg.Notifier.Mode != "queue" {
		t.Errorf("Notifier.Mode = %s, want queue", cfg.Notifier.Mode)
	}
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DB_DRIVER=sqlite\nDB_SQLITE_PATH=/tmp/x.db\nWATCHER_INTERVAL=30s\nNOTIFIER_MODE=direct\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"DB_DRIVER", "DB_SQLITE_PATH", "WATCHER_INTERVAL", "NOTIFIER_MODE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath != "/tmp/x.db" {
		t.Errorf("DB = %+v, want sqlite at /tmp/x.db", cfg.DB)
	}
	if cfg.Watcher.Interval != 30*time.Second {
		t.Errorf("Watcher.Interval = %s, want 30s", cfg.Watcher.Interval)
	}
	if cfg.Notifier.Mode != "direct" {
		t.Errorf("Notifier.Mode = %s, want direct", cfg.Notifier.Mode)
	}
}

func TestValidate_LookaheadShorterThanWindow(t *testing.T) {
	t.Setenv("WATCHER_LOOKAHEAD", "12h")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() must reject lookahead shorter than the day-before window")
	}
}

func TestValidate_EmptyTodayWindow(t *testing.T) {
	t.Setenv("WATCHER_TODAY_FROM", "23")
	t.Setenv("WATCHER_ONE_DAY_FROM", "23")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() must reject today_from equal to one_day_from")
	}

	t.Setenv("WATCHER_TODAY_FROM", "22")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load() error = %v for a one-hour today window", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mongo")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() must reject unknown db driver")
	}
}

func TestDBConfig_URL(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", Name: "tasks", SSLMode: "disable"}
	want := "postgresql://u:p%40ss@db:5432/tasks?sslmode=disable"
	if got := c.URL(); got != want {
		t.Errorf("URL() = %s, want %s", got, want)
	}
}
