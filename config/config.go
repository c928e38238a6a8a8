package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL        string
	JWTSecretKey       string
	ServerPort         int
	CORSAllowedOrigins []string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	SweepInterval         time.Duration
	ScheduleRatePerMinute int

	Engine Engine
}

// Engine holds the defaults of the scheduling and ranking engine.
type Engine struct {
	Scheduler SchedulerDefaults `yaml:"scheduler"`
	Standings StandingsDefaults `yaml:"standings"`
}

type SchedulerDefaults struct {
	SlotMinutes     int    `yaml:"slot_minutes"`
	DurationMinutes int    `yaml:"duration_minutes"`
	BufferMinutes   int    `yaml:"buffer_minutes"`
	MinRestMinutes  int    `yaml:"min_rest_minutes"`
	Priority        string `yaml:"priority"`
}

type StandingsDefaults struct {
	TieBreakRules []string `yaml:"tie_break_rules"`
}

// DefaultEngine returns the built-in engine defaults.
func DefaultEngine() Engine {
	return Engine{
		Scheduler: SchedulerDefaults{
			SlotMinutes:     15,
			DurationMinutes: 90,
			BufferMinutes:   0,
			MinRestMinutes:  30,
			Priority:        "GROUPS_FIRST",
		},
		Standings: StandingsDefaults{
			TieBreakRules: []string{"WINS", "HEAD_TO_HEAD", "SET_DIFF", "GAME_DIFF", "COIN_FLIP"},
		},
	}
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080" // Порт по умолчанию
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	sweep := time.Minute
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		sweep, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL environment variable: %w", err)
		}
		if sweep <= 0 {
			return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", sweep)
		}
	}

	ratePerMinute := 6
	if v := os.Getenv("SCHEDULE_RATE_PER_MINUTE"); v != "" {
		ratePerMinute, err = strconv.Atoi(v)
		if err != nil || ratePerMinute <= 0 {
			return nil, fmt.Errorf("SCHEDULE_RATE_PER_MINUTE must be a positive integer, got %q", v)
		}
	}

	engine, err := LoadEngine(os.Getenv("ENGINE_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:           dbURL,
		JWTSecretKey:          jwtKey,
		ServerPort:            port,
		CORSAllowedOrigins:    splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		R2AccountID:           os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:         os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:     os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:          os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:       os.Getenv("R2_PUBLIC_BASE_URL"),
		SweepInterval:         sweep,
		ScheduleRatePerMinute: ratePerMinute,
		Engine:                engine,
	}

	return cfg, nil
}

// ExportEnabled reports whether snapshots should be pushed to object storage.
func (c *Config) ExportEnabled() bool {
	return c.R2AccountID != ""
}

// LoadEngine reads engine defaults from a YAML file. Keys missing from the
// file keep their built-in values; an empty path returns the defaults.
func LoadEngine(path string) (Engine, error) {
	engine := DefaultEngine()
	if path == "" {
		return engine, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return engine, fmt.Errorf("failed to read engine config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &engine); err != nil {
		return engine, fmt.Errorf("failed to parse engine config %s: %w", path, err)
	}
	if err := engine.validate(); err != nil {
		return engine, fmt.Errorf("invalid engine config %s: %w", path, err)
	}
	return engine, nil
}

func (e Engine) validate() error {
	s := e.Scheduler
	if s.SlotMinutes <= 0 || s.DurationMinutes <= 0 {
		return errors.New("slot_minutes and duration_minutes must be positive")
	}
	if s.BufferMinutes < 0 || s.MinRestMinutes < 0 {
		return errors.New("buffer_minutes and min_rest_minutes must not be negative")
	}
	if len(e.Standings.TieBreakRules) == 0 {
		return errors.New("tie_break_rules must not be empty")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
