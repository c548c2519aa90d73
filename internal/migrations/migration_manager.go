// Package migrations creates, applies and reverts schema migrations.
package migrations

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/diff"
	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/generator"
	"github.com/shepherrrd/gonmigrate/internal/introspect"
	"github.com/shepherrrd/gonmigrate/internal/lock"
	"github.com/shepherrrd/gonmigrate/internal/models"
	"github.com/shepherrrd/gonmigrate/internal/scripts"
	"github.com/shepherrrd/gonmigrate/internal/snapshot"
)

const DefaultMigrationsDir = "migrations"

type Options struct {
	// MigrationsDir holds the scripts and the snapshot. Defaults to
	// "migrations".
	MigrationsDir string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Timeout bounds introspection and the execution of each migration.
	// Zero means no limit.
	Timeout time.Duration
	// LockTimeout bounds the wait for the migration lock. Zero means wait
	// until the context is done.
	LockTimeout time.Duration
	Diff        diff.Options
	Clock       func() time.Time
	// Lock defaults to the dialect's lock, see lock.ForDriver.
	Lock    lock.DistributedLock
	Metrics *Metrics
}

// Migrator compares the desired schema with the last recorded one, writes
// migration scripts and runs them against the database.
type Migrator struct {
	db       *gorm.DB
	driver   drivers.DatabaseDriver
	desired  *models.Schema
	opts     Options
	logger   *slog.Logger
	scripts  *scripts.Store
	snapshot *snapshot.Store
	ledger   *Ledger
	gen      *generator.Generator
	locker   lock.DistributedLock
	clock    func() time.Time
}

// MigrationInfo is one line of the migration history.
type MigrationInfo struct {
	ID        string
	Name      string
	Status    models.MigrationStatus
	AppliedAt *time.Time
}

// NewMigrator wires a migrator for db. desired may be nil for commands that
// only apply or revert existing scripts.
func NewMigrator(db *gorm.DB, driver drivers.DatabaseDriver, desired *models.Schema, opts Options) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if driver == nil {
		return nil, fmt.Errorf("database driver is required")
	}
	if desired != nil {
		if err := desired.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.MigrationsDir == "" {
		opts.MigrationsDir = DefaultMigrationsDir
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Lock == nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		opts.Lock = lock.ForDriver(driver.Name(), sqlDB, opts.Fs, opts.MigrationsDir)
	}

	return &Migrator{
		db:       db,
		driver:   driver,
		desired:  desired,
		opts:     opts,
		logger:   opts.Logger,
		scripts:  scripts.NewStore(opts.Fs, opts.MigrationsDir),
		snapshot: snapshot.NewStore(opts.Fs, opts.MigrationsDir),
		ledger:   NewLedger(db),
		gen:      generator.New(driver, opts.Clock),
		locker:   opts.Lock,
		clock:    opts.Clock,
	}, nil
}

func (m *Migrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		return context.WithTimeout(ctx, m.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Migrator) acquire(ctx context.Context) (func(), error) {
	lctx := ctx
	if m.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, m.opts.LockTimeout)
		defer cancel()
	}
	release, err := m.locker.Acquire(lctx, lock.DefaultKey)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return release, nil
}

func (m *Migrator) requireDesired() error {
	if m.desired == nil {
		return fmt.Errorf("%w: no desired schema configured", models.ErrInvalidSchema)
	}
	return nil
}

// Introspect reads the live database schema.
func (m *Migrator) Introspect(ctx context.Context) (*models.Schema, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return introspect.New(m.db, m.driver).Introspect(ctx)
}

// currentSchema is the last recorded schema: the snapshot when there is
// one, the live database otherwise.
func (m *Migrator) currentSchema(ctx context.Context) (*models.Schema, error) {
	current, err := m.snapshot.Load()
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, models.ErrSnapshotNotFound) {
		return nil, err
	}
	m.logger.Debug("no snapshot found, comparing against the database", "path", m.snapshot.Path())
	return m.Introspect(ctx)
}

// Diff returns the operations that turn the current schema into the
// desired one.
func (m *Migrator) Diff(ctx context.Context) (*models.Diff, error) {
	if err := m.requireDesired(); err != nil {
		return nil, err
	}
	current, err := m.currentSchema(ctx)
	if err != nil {
		return nil, err
	}
	return diff.Diff(current, m.desired, m.opts.Diff)
}

// CheckMigrationNeeded reports whether the desired schema differs from the
// current one. Unresolved possible renames count as a difference.
func (m *Migrator) CheckMigrationNeeded(ctx context.Context) (bool, error) {
	d, err := m.Diff(ctx)
	if err != nil {
		var conflict *models.DiffConflictError
		if errors.As(err, &conflict) {
			return true, nil
		}
		return false, err
	}
	return !d.IsEmpty(), nil
}

// Preview renders the next migration without writing anything.
func (m *Migrator) Preview(ctx context.Context, name string) (*models.MigrationRecord, error) {
	if err := m.requireDesired(); err != nil {
		return nil, err
	}
	current, err := m.currentSchema(ctx)
	if err != nil {
		return nil, err
	}
	d, err := diff.Diff(current, m.desired, m.opts.Diff)
	if err != nil {
		return nil, err
	}
	if d.IsEmpty() {
		return nil, models.ErrNoChanges
	}
	ids, err := m.scripts.IDs()
	if err != nil {
		return nil, err
	}
	rec, _, err := m.gen.Generate(d, name, current, ids)
	return rec, err
}

// CreateInitialMigration writes the first migration, creating the whole
// desired schema from nothing. When the database already matches the
// desired schema the migration is recorded as applied without running it.
func (m *Migrator) CreateInitialMigration(ctx context.Context, name string) (*models.MigrationRecord, error) {
	if err := m.requireDesired(); err != nil {
		return nil, err
	}
	ids, err := m.scripts.IDs()
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return nil, models.ErrInitialMigrationExists
	}
	if name == "" {
		name = "initial"
	}

	d, err := diff.Diff(models.NewSchema(), m.desired, m.opts.Diff)
	if err != nil {
		return nil, err
	}
	if d.IsEmpty() {
		return nil, models.ErrNoChanges
	}
	rec, after, err := m.gen.Generate(d, name, models.NewSchema(), nil)
	if err != nil {
		return nil, err
	}
	if err := m.save(rec, after); err != nil {
		return nil, err
	}
	m.logger.Info("created initial migration", "id", rec.ID, "statements", len(rec.Up))

	live, err := m.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	if !coversTables(live, m.desired) {
		return rec, nil
	}
	drift, err := diff.Diff(live, m.desired, m.opts.Diff)
	if err != nil || !drift.IsEmpty() {
		args := []any{"id", rec.ID}
		if err != nil {
			args = append(args, "error", err)
		} else {
			args = append(args, "operations", len(drift.Operations))
		}
		m.logger.Warn("database has the desired tables but a different schema, initial migration left pending", args...)
		return rec, nil
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := m.ledger.Ensure(ctx); err != nil {
		return nil, err
	}
	entry := m.entry(rec, models.DirectionUp, uuid.NewString())
	if err := m.ledger.Append(m.db.WithContext(ctx), entry); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	m.logger.Info("database already has the initial schema, marked as applied", "id", rec.ID)
	return rec, nil
}

func coversTables(live, desired *models.Schema) bool {
	for _, name := range desired.TableNames() {
		if live.Table(name) == nil {
			return false
		}
	}
	return true
}

// CreateMigration diffs the desired schema against the current one and
// writes the result as a new script.
func (m *Migrator) CreateMigration(ctx context.Context, name string) (*models.MigrationRecord, error) {
	if err := m.requireDesired(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("migration name is required")
	}
	current, err := m.currentSchema(ctx)
	if err != nil {
		return nil, err
	}
	d, err := diff.Diff(current, m.desired, m.opts.Diff)
	if err != nil {
		return nil, err
	}
	if d.IsEmpty() {
		return nil, models.ErrNoChanges
	}
	ids, err := m.scripts.IDs()
	if err != nil {
		return nil, err
	}
	rec, after, err := m.gen.Generate(d, name, current, ids)
	if err != nil {
		return nil, err
	}
	if err := m.save(rec, after); err != nil {
		return nil, err
	}
	m.logger.Info("created migration", "id", rec.ID, "operations", len(d.Operations), "statements", len(rec.Up))
	return rec, nil
}

func (m *Migrator) save(rec *models.MigrationRecord, after *models.Schema) error {
	if err := m.scripts.Save(rec); err != nil {
		return err
	}
	if err := m.snapshot.Save(after); err != nil {
		if rerr := m.scripts.Remove(rec.ID); rerr != nil {
			m.logger.Error("failed to remove script after snapshot failure", "id", rec.ID, "error", rerr)
		}
		return err
	}
	return nil
}

// RemoveLastMigration deletes the newest script if it has not been applied
// and rewinds the snapshot to the state before it.
func (m *Migrator) RemoveLastMigration(ctx context.Context) (string, error) {
	ids, err := m.scripts.IDs()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: no migrations to remove", models.ErrUnknownMigration)
	}
	last := ids[len(ids)-1]

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range applied {
		if a.ID == last {
			return "", fmt.Errorf("migration %s has been applied, roll it back before removing it", last)
		}
	}

	rec, err := m.scripts.Load(last)
	if err != nil {
		return "", err
	}
	if err := m.scripts.Remove(last); err != nil {
		return "", err
	}

	if len(ids) == 1 {
		return last, m.snapshot.Remove()
	}
	if err := m.rewindSnapshot(rec); err != nil {
		m.logger.Warn("could not rewind snapshot, it will be rebuilt from the database", "id", last, "error", err)
		if rerr := m.snapshot.Remove(); rerr != nil {
			return last, rerr
		}
	}
	m.logger.Info("removed migration", "id", last)
	return last, nil
}

func (m *Migrator) rewindSnapshot(rec *models.MigrationRecord) error {
	if len(rec.Operations) == 0 {
		return fmt.Errorf("migration %s does not record its operations", rec.ID)
	}
	current, err := m.snapshot.Load()
	if err != nil {
		return err
	}
	forward := &models.Diff{Operations: rec.Operations}
	previous, err := current.ApplyAll(forward.Inverse())
	if err != nil {
		return err
	}
	return m.snapshot.Save(previous)
}

// appliedMigrations reads the ledger, creating it when missing.
func (m *Migrator) appliedMigrations(ctx context.Context) ([]models.AppliedMigration, error) {
	if err := m.ledger.Ensure(ctx); err != nil {
		return nil, err
	}
	return m.ledger.Applied(ctx)
}

// GetExecutedMigrations returns the applied migrations in ascending ID order.
func (m *Migrator) GetExecutedMigrations(ctx context.Context) ([]models.AppliedMigration, error) {
	return m.appliedMigrations(ctx)
}

// GetPendingMigrations returns the scripts not yet applied, in ascending ID
// order. Applied scripts whose content changed are reported as
// *models.ChecksumMismatchError.
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]*models.MigrationRecord, error) {
	records, applied, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return pending(records, applied), nil
}

// ListMigrations returns every known migration with its status, including
// applied migrations whose script is gone.
func (m *Migrator) ListMigrations(ctx context.Context) ([]MigrationInfo, error) {
	if err := m.ledger.Ensure(ctx); err != nil {
		return nil, err
	}
	entries, err := m.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}
	records, err := m.scripts.List()
	if err != nil {
		return nil, err
	}

	last := make(map[string]models.LedgerEntry)
	for _, e := range entries {
		last[e.MigrationID] = e
	}

	infos := make([]MigrationInfo, 0, len(records))
	seen := make(map[string]bool)
	for _, rec := range records {
		seen[rec.ID] = true
		infos = append(infos, info(rec.ID, rec.Name, last))
	}
	for _, a := range replay(entries) {
		if !seen[a.ID] {
			infos = append(infos, info(a.ID, a.Name, last))
		}
	}
	sortInfos(infos)
	return infos, nil
}

func info(id, name string, last map[string]models.LedgerEntry) MigrationInfo {
	mi := MigrationInfo{ID: id, Name: name, Status: models.StatusPending}
	if e, ok := last[id]; ok {
		switch e.Action {
		case models.DirectionUp:
			at := e.AppliedAt
			mi.Status = models.StatusApplied
			mi.AppliedAt = &at
		case models.DirectionDown:
			mi.Status = models.StatusRolledBack
		}
	}
	return mi
}

func sortInfos(infos []MigrationInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

// load reads scripts and ledger and verifies applied checksums.
func (m *Migrator) load(ctx context.Context) ([]*models.MigrationRecord, []models.AppliedMigration, error) {
	records, err := m.scripts.List()
	if err != nil {
		return nil, nil, err
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := m.verify(records, applied); err != nil {
		return nil, nil, err
	}
	return records, applied, nil
}

func (m *Migrator) verify(records []*models.MigrationRecord, applied []models.AppliedMigration) error {
	byID := make(map[string]*models.MigrationRecord, len(records))
	for _, rec := range records {
		actual := rec.ComputeChecksum()
		if rec.Checksum != "" && rec.Checksum != actual {
			m.logger.Warn("script checksum header does not match its content", "id", rec.ID)
		}
		byID[rec.ID] = rec
	}
	for _, a := range applied {
		rec, ok := byID[a.ID]
		if !ok {
			m.logger.Warn("applied migration has no script", "id", a.ID)
			continue
		}
		if actual := rec.ComputeChecksum(); actual != a.Checksum {
			return &models.ChecksumMismatchError{ID: a.ID, Recorded: a.Checksum, Actual: actual}
		}
	}
	return nil
}

func pending(records []*models.MigrationRecord, applied []models.AppliedMigration) []*models.MigrationRecord {
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.ID] = true
	}
	var out []*models.MigrationRecord
	for _, rec := range records {
		if !done[rec.ID] {
			out = append(out, rec)
		}
	}
	return out
}

// Up applies pending migrations in ascending order, up to and including
// target. An empty target applies everything. It returns the IDs applied
// before any failure.
func (m *Migrator) Up(ctx context.Context, target string) ([]string, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	records, applied, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	todo := pending(records, applied)

	if target != "" {
		idx := -1
		for i, rec := range records {
			if rec.ID == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownMigration, target)
		}
		var upTo []*models.MigrationRecord
		for _, rec := range todo {
			if rec.ID <= target {
				upTo = append(upTo, rec)
			}
		}
		todo = upTo
	}

	if len(todo) == 0 {
		m.logger.Info("database is up to date")
		return nil, nil
	}
	if len(applied) > 0 {
		newest := applied[len(applied)-1].ID
		if todo[0].ID < newest {
			return nil, fmt.Errorf("%w: %s is older than applied %s", models.ErrOutOfOrder, todo[0].ID, newest)
		}
	}

	batch := uuid.NewString()
	var done []string
	for _, rec := range todo {
		m.logger.Info("applying migration", "id", rec.ID, "batch", batch)
		if err := m.execute(ctx, rec, models.DirectionUp, batch); err != nil {
			m.logger.Error("migration failed", "id", rec.ID, "error", err)
			return done, err
		}
		done = append(done, rec.ID)
	}
	m.logger.Info("applied migrations", "count", len(done))
	return done, nil
}

// Down reverts applied migrations newer than target, newest first. An
// empty target reverts only the most recent migration.
func (m *Migrator) Down(ctx context.Context, target string) ([]string, error) {
	return m.down(ctx, target, false)
}

// DownAll reverts every applied migration.
func (m *Migrator) DownAll(ctx context.Context) ([]string, error) {
	return m.down(ctx, "", true)
}

func (m *Migrator) down(ctx context.Context, target string, all bool) ([]string, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	records, applied, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		m.logger.Info("no applied migrations to revert")
		return nil, nil
	}

	var revert []models.AppliedMigration
	switch {
	case all:
		revert = applied
	case target == "":
		revert = applied[len(applied)-1:]
	default:
		known := false
		for _, a := range applied {
			if a.ID == target {
				known = true
			}
			if a.ID > target {
				revert = append(revert, a)
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %s is not applied", models.ErrUnknownMigration, target)
		}
	}

	byID := make(map[string]*models.MigrationRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	batch := uuid.NewString()
	var done []string
	for i := len(revert) - 1; i >= 0; i-- {
		rec, ok := byID[revert[i].ID]
		if !ok {
			return done, fmt.Errorf("%w: script for applied migration %s is missing", models.ErrUnknownMigration, revert[i].ID)
		}
		m.logger.Info("reverting migration", "id", rec.ID, "batch", batch)
		if err := m.execute(ctx, rec, models.DirectionDown, batch); err != nil {
			m.logger.Error("rollback failed", "id", rec.ID, "error", err)
			return done, err
		}
		done = append(done, rec.ID)
	}
	m.logger.Info("reverted migrations", "count", len(done))
	return done, nil
}

func (m *Migrator) entry(rec *models.MigrationRecord, direction models.Direction, batch string) *models.LedgerEntry {
	return &models.LedgerEntry{
		MigrationID: rec.ID,
		Name:        rec.Name,
		Checksum:    rec.ComputeChecksum(),
		Action:      direction,
		Batch:       batch,
		AppliedAt:   m.clock().UTC(),
	}
}

func (m *Migrator) execute(ctx context.Context, rec *models.MigrationRecord, direction models.Direction, batch string) error {
	started := time.Now()
	err := m.run(ctx, rec, direction, batch)
	m.opts.Metrics.observe(direction, started, err)
	return err
}

// run executes one migration. With transactional DDL the statements and
// the ledger row commit together; otherwise the ledger row is written only
// after every statement succeeded.
func (m *Migrator) run(ctx context.Context, rec *models.MigrationRecord, direction models.Direction, batch string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	stmts := rec.Up
	if direction == models.DirectionDown {
		stmts = rec.Down
	}
	entry := m.entry(rec, direction, batch)

	db := m.db.WithContext(ctx)
	checkForeignKeys := false
	if m.driver.RequiresForeignKeysOff() {
		conn, enforced, restore, err := m.pinWithoutForeignKeys(ctx)
		if err != nil {
			return migrationError(ctx, rec.ID, direction, "", err)
		}
		defer restore()
		db.Statement.ConnPool = conn
		checkForeignKeys = enforced
	}

	var failed string
	exec := func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			m.logger.Debug("executing statement", "id", rec.ID, "sql", stmt)
			if err := tx.Exec(stmt).Error; err != nil {
				failed = stmt
				return err
			}
		}
		if checkForeignKeys {
			if err := foreignKeyCheck(tx); err != nil {
				failed = foreignKeyCheckSQL
				return err
			}
		}
		return m.ledger.Append(tx, entry)
	}

	var err error
	if m.driver.SupportsTransactionalDDL() {
		err = db.Transaction(exec)
	} else {
		err = exec(db)
	}
	if err != nil {
		return migrationError(ctx, rec.ID, direction, failed, err)
	}
	return nil
}

const foreignKeyCheckSQL = "PRAGMA foreign_key_check"

// pinWithoutForeignKeys takes one connection out of the pool and switches
// foreign key enforcement off on it. The pragma is a no-op inside a
// transaction, so it must run before BEGIN. enforced reports whether
// enforcement was on; restore switches it back and returns the connection.
func (m *Migrator) pinWithoutForeignKeys(ctx context.Context) (conn *sql.Conn, enforced bool, restore func(), err error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	conn, err = sqlDB.Conn(ctx)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to pin connection: %w", err)
	}

	var on int
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		conn.Close()
		return nil, false, nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if on == 0 {
		return conn, false, func() { conn.Close() }, nil
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		conn.Close()
		return nil, false, nil, fmt.Errorf("failed to disable foreign keys: %w", err)
	}

	restore = func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
			m.logger.Error("failed to re-enable foreign keys, discarding connection", "error", err)
			_ = conn.Raw(func(any) error { return sqldriver.ErrBadConn })
		}
		conn.Close()
	}
	return conn, true, restore, nil
}

// foreignKeyViolation is one row of PRAGMA foreign_key_check.
type foreignKeyViolation struct {
	Table  string
	Rowid  int64
	Parent string
	Fkid   int
}

func foreignKeyCheck(tx *gorm.DB) error {
	var violations []foreignKeyViolation
	if err := tx.Raw(foreignKeyCheckSQL).Scan(&violations).Error; err != nil {
		return fmt.Errorf("foreign key check failed: %w", err)
	}
	if len(violations) == 0 {
		return nil
	}
	v := violations[0]
	return fmt.Errorf("%d foreign key violation(s), first: %s row %d references missing %s",
		len(violations), v.Table, v.Rowid, v.Parent)
}

func migrationError(ctx context.Context, id string, direction models.Direction, stmt string, err error) error {
	wrapped := fmt.Errorf("%w: %v", models.ErrTransaction, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		wrapped = fmt.Errorf("%w: %w: %v", models.ErrTransaction, models.ErrTimeout, err)
	}
	return &models.MigrationError{ID: id, Direction: direction, Statement: stmt, Err: wrapped}
}
