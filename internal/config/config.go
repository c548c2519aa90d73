// Package config loads CLI settings from flags, environment and a config
// file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

const (
	ConfigName = ".gonmigrate"
	EnvPrefix  = "GONMIGRATE"
)

// Config holds the settings shared by every command.
type Config struct {
	Driver        string
	DatabaseURL   string
	MigrationsDir string
	SchemaFile    string
	EntitiesDir   string
	Naming        string
	LogLevel      string
	LogFormat     string
	SQLLogLevel   string
	Timeout       time.Duration
	LockTimeout   time.Duration
	AllowDropAdd  bool
	CompareSizes  bool
}

// NewViper returns a viper instance with defaults, config file search
// paths and environment binding set up.
func NewViper() (*viper.Viper, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "gonmigrate"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("naming", "snake")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("sql_log_level", "silent")
	v.SetDefault("timeout", "5m")
	v.SetDefault("lock_timeout", "1m")
	v.SetDefault("allow_drop_add", false)
	v.SetDefault("compare_sizes", false)
	return v, nil
}

// Load reads .env files and the config file into v and returns the merged
// configuration. A missing config file is not an error unless one was set
// explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if _, err := AppFs.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return nil, fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Driver:        v.GetString("driver"),
		DatabaseURL:   v.GetString("database_url"),
		MigrationsDir: v.GetString("migrations_dir"),
		SchemaFile:    v.GetString("schema_file"),
		EntitiesDir:   v.GetString("entities_dir"),
		Naming:        v.GetString("naming"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		SQLLogLevel:   v.GetString("sql_log_level"),
		Timeout:       v.GetDuration("timeout"),
		LockTimeout:   v.GetDuration("lock_timeout"),
		AllowDropAdd:  v.GetBool("allow_drop_add"),
		CompareSizes:  v.GetBool("compare_sizes"),
	}
	if cfg.Driver == "" {
		cfg.Driver = DetectDriver(cfg.DatabaseURL)
	}
	if cfg.Driver != "" {
		driver, err := NormalizeDriver(cfg.Driver)
		if err != nil {
			return nil, err
		}
		cfg.Driver = driver
	}
	return cfg, nil
}

// NormalizeDriver maps driver aliases to "postgres", "mysql" or "sqlite".
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return "postgres", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported driver %q", name)
}

// DetectDriver guesses the driver from a connection string; it returns ""
// when the form is not recognised.
func DetectDriver(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case lower == "":
		return ""
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("):
		return "mysql"
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	}
	return ""
}

// DSN returns the connection string in the form the driver expects.
// mysql:// URLs are rewritten to go-sql-driver's user:pass@tcp(host)/db form.
func (c *Config) DSN() string {
	if c.Driver != "mysql" || !strings.HasPrefix(c.DatabaseURL, "mysql://") {
		return c.DatabaseURL
	}
	rest := strings.TrimPrefix(c.DatabaseURL, "mysql://")
	userinfo, hostpath, ok := strings.Cut(rest, "@")
	if !ok {
		hostpath, userinfo = rest, ""
	}
	host, path, _ := strings.Cut(hostpath, "/")
	dsn := fmt.Sprintf("tcp(%s)/%s", host, path)
	if userinfo != "" {
		dsn = userinfo + "@" + dsn
	}
	return dsn
}

// Validate reports settings that would make every database command fail.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "database url is required (set DATABASE_URL or database_url)")
	}
	if c.Driver == "" {
		problems = append(problems, "driver is required and could not be detected from the database url")
	} else if _, err := NormalizeDriver(c.Driver); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MigrationsDir == "" {
		problems = append(problems, "migrations directory is required")
	}
	if c.Timeout < 0 || c.LockTimeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.Naming != "" && c.Naming != "snake" && c.Naming != "preserve" {
		problems = append(problems, fmt.Sprintf("unknown naming strategy %q", c.Naming))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
