// Package config собирает настройки сервиса из .env, переменных окружения и значений по умолчанию.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Driver     string `mapstructure:"driver"` // postgres | sqlite
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// URL - строка подключения для pgx и golang-migrate.
func (c DBConfig) URL() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func (c RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/",
	}
	return u.String()
}

type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifierConfig struct {
	// Mode: queue - через RabbitMQ и notification worker, direct - сразу в telegram.
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// WatcherConfig - фоновая проверка сроков. Границы окон в часах.
type WatcherConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Lookahead      time.Duration `mapstructure:"lookahead"`
	OneDayFrom     float64       `mapstructure:"one_day_from"`
	OneDayTo       float64       `mapstructure:"one_day_to"`
	TodayFrom      float64       `mapstructure:"today_from"`
	TwoHoursWithin float64       `mapstructure:"two_hours_within"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
	Timezone string         `mapstructure:"timezone"`
}

var defaults = map[string]any{
	"db.driver":      "postgres",
	"db.host":        "localhost",
	"db.port":        "5432",
	"db.user":        "postgres",
	"db.password":    "postgres",
	"db.name":        "restaurant_tasks",
	"db.sslmode":     "disable",
	"db.sqlite_path": "data/tasks.db",

	"rabbitmq.host":     "localhost",
	"rabbitmq.port":     "5672",
	"rabbitmq.user":     "guest",
	"rabbitmq.password": "guest",

	"telegram.token":   "",
	"telegram.timeout": "10s",

	"notifier.mode":        "queue",
	"notifier.concurrency": 8,

	"http.addr":             ":8080",
	"http.shutdown_timeout": "10s",

	"jwt.secret": "",
	"jwt.ttl":    "720h",

	"watcher.interval":         "60s",
	"watcher.lookahead":        "48h",
	"watcher.one_day_from":     23.0,
	"watcher.one_day_to":       25.0,
	"watcher.today_from":       2.0,
	"watcher.two_hours_within": 2.0,

	"log.level":  "info",
	"log.format": "text",
	"log.file":   "",

	"timezone": "Asia/Krasnoyarsk",
}

// Load читает envFile (если он есть) и окружение. Ключ db.host берётся из DB_HOST и т.д.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// файла может не быть, тогда работаем только с окружением
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	switch c.Notifier.Mode {
	case "queue", "direct":
	default:
		return fmt.Errorf("unknown notifier mode %q", c.Notifier.Mode)
	}
	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher interval must be positive")
	}
	w := c.Watcher
	if !(0 < w.TwoHoursWithin && w.TwoHoursWithin <= w.TodayFrom && w.TodayFrom < w.OneDayFrom && w.OneDayFrom < w.OneDayTo) {
		return fmt.Errorf("deadline windows must be ordered: 0 < two_hours_within <= today_from < one_day_from < one_day_to")
	}
	if w.Lookahead < Hours(w.OneDayTo) {
		return fmt.Errorf("watcher lookahead %s is shorter than the largest window %.0fh", w.Lookahead, w.OneDayTo)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location - часовой пояс ресторана для ручного ввода сроков и текста сообщений.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Hours переводит границу окна из конфига в time.Duration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
