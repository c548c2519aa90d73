package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/config"
	"github.com/shepherrrd/gonmigrate/internal/diff"
	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/entities"
	"github.com/shepherrrd/gonmigrate/internal/logging"
	"github.com/shepherrrd/gonmigrate/internal/migrations"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

// app carries what every command needs once flags and config are parsed.
type app struct {
	configFile string
	noColor    bool

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newApp() *app {
	return &app{}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"driver":         "driver",
	"database-url":   "database_url",
	"migrations-dir": "migrations_dir",
	"schema":         "schema_file",
	"entities":       "entities_dir",
	"naming":         "naming",
	"log-level":      "log_level",
	"log-format":     "log_format",
	"sql-log-level":  "sql_log_level",
	"timeout":        "timeout",
	"lock-timeout":   "lock_timeout",
	"allow-drop-add": "allow_drop_add",
	"compare-sizes":  "compare_sizes",
}

func (a *app) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is .gonmigrate.yaml in the working or home directory)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.String("driver", "", "database driver: postgres, mysql or sqlite (detected from the url when empty)")
	flags.String("database-url", "", "database connection string (env DATABASE_URL)")
	flags.String("migrations-dir", "", "directory holding migration scripts and the schema snapshot")
	flags.String("schema", "", "YAML schema file describing the desired schema")
	flags.String("entities", "", "directory with Go structs tagged with `gonmigrate`")
	flags.String("naming", "", "naming strategy for entities: snake or preserve")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.String("sql-log-level", "", "SQL statement logging: silent, error, warn or info")
	flags.Duration("timeout", 0, "timeout for introspection and for each migration")
	flags.Duration("lock-timeout", 0, "how long to wait for the migration lock")
	flags.Bool("allow-drop-add", false, "treat look-alike drop/add pairs as real drops and adds")
	flags.Bool("compare-sizes", false, "treat size, precision and scale changes as column changes")
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	if a.noColor {
		color.NoColor = true
		pterm.DisableStyling()
	}

	v, err := config.NewViper()
	if err != nil {
		return err
	}
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// gorm's SQL log writes through the default handler.
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

// desiredSchema loads the schema file or scans the entities directory.
// It returns nil when neither is configured.
func (a *app) desiredSchema() (*models.Schema, []models.RenameCandidate, error) {
	switch {
	case a.cfg.SchemaFile != "":
		return entities.LoadSchemaFile(config.AppFs, a.cfg.SchemaFile)
	case a.cfg.EntitiesDir != "":
		scanner := entities.NewScanner(config.AppFs, entities.NamingStrategyFor(a.cfg.Naming))
		s, err := scanner.ScanSchema(a.cfg.EntitiesDir)
		return s, nil, err
	}
	return nil, nil, nil
}

// session is an open connection plus the migrator built on it.
type session struct {
	db       *gorm.DB
	migrator *migrations.Migrator
}

func (s *session) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// open connects to the database. withDesired loads the desired schema
// too; commands that only run existing scripts skip it.
func (a *app) open(withDesired bool) (*session, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		desired *models.Schema
		hints   []models.RenameCandidate
	)
	if withDesired {
		var err error
		desired, hints, err = a.desiredSchema()
		if err != nil {
			return nil, err
		}
		if desired == nil {
			return nil, fmt.Errorf("no desired schema: set --schema or --entities")
		}
	}

	driver, err := drivers.NewDriver(a.cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := driver.ConnectWithLogger(a.cfg.DSN(), a.cfg.SQLLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m, err := migrations.NewMigrator(db, driver, desired, migrations.Options{
		MigrationsDir: a.cfg.MigrationsDir,
		Fs:            config.AppFs,
		Logger:        a.logger,
		Timeout:       a.cfg.Timeout,
		LockTimeout:   a.cfg.LockTimeout,
		Diff: diff.Options{
			Renames:      hints,
			AllowDropAdd: a.cfg.AllowDropAdd,
			CompareSizes: a.cfg.CompareSizes,
		},
	})
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return &session{db: db, migrator: m}, nil
}
