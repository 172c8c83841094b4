package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `json:"port" yaml:"port"`
	BasePath    string `json:"basePath" yaml:"basePath"`
	DBURL       string `json:"dbUrl" yaml:"dbUrl"` // пусто = in-memory
	AutoMigrate bool   `json:"autoMigrate" yaml:"autoMigrate"`

	DBMaxOpenConns    int      `json:"dbMaxOpenConns" yaml:"dbMaxOpenConns"`
	DBMaxIdleConns    int      `json:"dbMaxIdleConns" yaml:"dbMaxIdleConns"`
	DBConnMaxLifetime Duration `json:"dbConnMaxLifetime" yaml:"dbConnMaxLifetime"`
	SeedPath    string `json:"seedPath" yaml:"seedPath"`

	JWTSecret     string   `json:"jwtSecret" yaml:"jwtSecret"`
	JWTExpiration Duration `json:"jwtExpiration" yaml:"jwtExpiration"`

	LogLevel       string   `json:"logLevel" yaml:"logLevel"`
	CORSOrigins    []string `json:"corsOrigins" yaml:"corsOrigins"`
	LoginPerMinute int      `json:"loginPerMinute" yaml:"loginPerMinute"`
	RequestTimeout Duration `json:"requestTimeout" yaml:"requestTimeout"`
}

// Duration читается из строки вида "24h" или из числа миллисекунд.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms int64
		if err2 := json.Unmarshal(b, &ms); err2 != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error { return d.set(n.Value) }

func (d Duration) String() string { return time.Duration(d).String() }

func def() Config {
	return Config{
		Port:              "8080",
		BasePath:          "/api",
		DBURL:             "",
		AutoMigrate:       true,
		DBMaxOpenConns:    10,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: Duration(30 * time.Minute),
		SeedPath:          "reference/seed.yaml",
		JWTSecret:         "",
		JWTExpiration:     Duration(24 * time.Hour),
		LogLevel:          "info",
		CORSOrigins:       []string{"*"},
		LoginPerMinute:    10,
		RequestTimeout:    Duration(30 * time.Second),
	}
}

// loadFile: JSON или YAML по расширению.
func loadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, c)
	default:
		return json.Unmarshal(b, c)
	}
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load: значения по умолчанию, затем файл конфигурации, .env, переменные DATAHUB_* и флаги.
func Load(args []string) (Config, error) {
	fs0 := flag.NewFlagSet("datahub", flag.ContinueOnError)
	configPath := fs0.String("config", getenv("DATAHUB_CONFIG", "config.json"), "Path to config file (JSON or YAML)")
	envFile := fs0.String("env-file", ".env", "Path to .env file")
	port := fs0.String("port", "", "HTTP port")
	basePath := fs0.String("base-path", "", "API base path")
	db := fs0.String("db", "", "Postgres URL (empty = in-memory)")
	auto := fs0.String("auto-migrate", "", "Apply schema on start (true/false)")
	seed := fs0.String("seed", "", "Seed YAML file or directory (empty string disables)")
	logLevel := fs0.String("log-level", "", "debug|info|warn|error")
	if err := fs0.Parse(args); err != nil {
		return Config{}, err
	}
	set := map[string]bool{}
	fs0.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := def()

	// файл конфигурации (если существует)
	if st, err := os.Stat(*configPath); err == nil && !st.IsDir() {
		if err := loadFile(*configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", *configPath, err)
		}
	}

	// .env не перетирает уже выставленные переменные окружения
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("env file %s: %w", *envFile, err)
	}

	// ENV overrides
	cfg.Port = getenv("DATAHUB_PORT", getenv("PORT", cfg.Port))
	cfg.BasePath = getenv("DATAHUB_BASE_PATH", cfg.BasePath)
	cfg.DBURL = getenv("DATAHUB_DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("DATAHUB_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.DBMaxOpenConns = getenvInt("DATAHUB_DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)
	cfg.DBMaxIdleConns = getenvInt("DATAHUB_DB_MAX_IDLE_CONNS", cfg.DBMaxIdleConns)
	if v := getenv("DATAHUB_DB_CONN_MAX_LIFETIME", ""); v != "" {
		if err := cfg.DBConnMaxLifetime.set(v); err != nil {
			return Config{}, fmt.Errorf("DATAHUB_DB_CONN_MAX_LIFETIME: %w", err)
		}
	}
	if v, ok := os.LookupEnv("DATAHUB_SEED_PATH"); ok {
		cfg.SeedPath = strings.TrimSpace(v)
	}
	cfg.JWTSecret = getenv("DATAHUB_JWT_SECRET", cfg.JWTSecret)
	if v := getenv("DATAHUB_JWT_EXPIRATION", ""); v != "" {
		if err := cfg.JWTExpiration.set(v); err != nil {
			return Config{}, fmt.Errorf("DATAHUB_JWT_EXPIRATION: %w", err)
		}
	}
	cfg.LogLevel = getenv("DATAHUB_LOG_LEVEL", cfg.LogLevel)
	if v := getenv("DATAHUB_CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.LoginPerMinute = getenvInt("DATAHUB_LOGIN_PER_MINUTE", cfg.LoginPerMinute)
	if v := getenv("DATAHUB_REQUEST_TIMEOUT", ""); v != "" {
		if err := cfg.RequestTimeout.set(v); err != nil {
			return Config{}, fmt.Errorf("DATAHUB_REQUEST_TIMEOUT: %w", err)
		}
	}

	// Flags overrides
	if set["port"] {
		cfg.Port = strings.TrimSpace(*port)
	}
	if set["base-path"] {
		cfg.BasePath = strings.TrimSpace(*basePath)
	}
	if set["db"] {
		cfg.DBURL = strings.TrimSpace(*db)
	}
	if set["auto-migrate"] {
		b, ok := parseBool(*auto)
		if !ok {
			return Config{}, fmt.Errorf("-auto-migrate: invalid value %q", *auto)
		}
		cfg.AutoMigrate = b
	}
	if set["seed"] {
		cfg.SeedPath = strings.TrimSpace(*seed)
	}
	if set["log-level"] {
		cfg.LogLevel = strings.TrimSpace(*logLevel)
	}

	if !strings.HasPrefix(cfg.BasePath, "/") {
		cfg.BasePath = "/" + cfg.BasePath
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return cfg, nil
}
