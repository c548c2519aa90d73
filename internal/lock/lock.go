package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// DefaultKey is the lock key used by the migrator.
const DefaultKey = "gonmigrate"

// DistributedLock provides mutual exclusion for migration operations across
// multiple processes or nodes.
type DistributedLock interface {
	// Acquire obtains the lock for the given key. The returned release function
	// must be called to release the lock.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ForDriver picks the lock implementation matching a dialect. SQLite gets a
// lock file next to the migration scripts.
func ForDriver(driver string, db *sql.DB, fs afero.Fs, dir string) DistributedLock {
	switch driver {
	case "postgres":
		return NewPostgresLock(db)
	case "mysql":
		return NewMySQLLock(db)
	default:
		return NewFileLock(fs, filepath.Join(dir, ".gonmigrate.lock"))
	}
}

// PostgresLock uses a session level advisory lock held on a pinned
// connection, so the unlock runs on the session that took the lock.
type PostgresLock struct {
	db *sql.DB
}

func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for advisory lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		conn.Close()
		return nil, lockError(ctx, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err))
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		conn.Close()
	}
	return release, nil
}

// MySQLLock uses GET_LOCK, polling in one second slices so the context can
// interrupt the wait.
type MySQLLock struct {
	db *sql.DB
}

func NewMySQLLock(db *sql.DB) *MySQLLock {
	return &MySQLLock{db: db}
}

func (l *MySQLLock) Acquire(ctx context.Context, key string) (func(), error) {
	name := fmt.Sprintf("gonmigrate_%d", hashLockKey(key))

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection for GET_LOCK: %w", err)
	}

	for {
		var got sql.NullInt64
		if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 1)`, name).Scan(&got); err != nil {
			conn.Close()
			return nil, lockError(ctx, fmt.Errorf("GET_LOCK(%s): %w", name, err))
		}
		if got.Valid && got.Int64 == 1 {
			break
		}
		if err := ctx.Err(); err != nil {
			conn.Close()
			return nil, lockError(ctx, err)
		}
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, name)
		conn.Close()
	}
	return release, nil
}

// FileLock serialises migrations on databases without advisory locks. The
// lock file is created with O_EXCL and holds an owner token. The holder
// touches the file every RefreshEvery; a file untouched for StaleAfter is
// considered abandoned and taken over. A channel guards the in-process side
// so waiting goroutines honour their context.
type FileLock struct {
	fs           afero.Fs
	path         string
	sem          chan struct{}
	StaleAfter   time.Duration
	RefreshEvery time.Duration
	RetryEvery   time.Duration
}

func NewFileLock(fs afero.Fs, path string) *FileLock {
	return &FileLock{
		fs:           fs,
		path:         path,
		sem:          make(chan struct{}, 1),
		StaleAfter:   10 * time.Minute,
		RefreshEvery: time.Minute,
		RetryEvery:   100 * time.Millisecond,
	}
}

func (l *FileLock) Acquire(ctx context.Context, key string) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, lockError(ctx, fmt.Errorf("%w: %s", models.ErrLockHeld, l.path))
	}

	token := uuid.NewString()
	tookOver := false
	for {
		err := l.create(token, key)
		if err == nil {
			// Another waiter may have judged the same stale file and removed
			// ours in between; only the surviving token holds the lock.
			if !tookOver || l.stillOwned(ctx, token) {
				break
			}
			tookOver = false
			continue
		}
		if !errors.Is(err, os.ErrExist) {
			<-l.sem
			return nil, fmt.Errorf("failed to create lock file %s: %w", l.path, err)
		}
		if l.removeIfStale() {
			tookOver = true
			continue
		}
		select {
		case <-ctx.Done():
			<-l.sem
			return nil, lockError(ctx, fmt.Errorf("%w: %s", models.ErrLockHeld, l.path))
		case <-time.After(l.RetryEvery):
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.refresh(token, stop, stopped)

	release := func() {
		close(stop)
		<-stopped
		if owner, err := l.owner(); err == nil && owner == token {
			_ = l.fs.Remove(l.path)
		}
		<-l.sem
	}
	return release, nil
}

// refresh keeps the lock file's mtime current while the lock is held.
func (l *FileLock) refresh(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	if l.RefreshEvery <= 0 {
		<-stop
		return
	}
	ticker := time.NewTicker(l.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if owner, err := l.owner(); err != nil || owner != token {
				return
			}
			now := time.Now()
			_ = l.fs.Chtimes(l.path, now, now)
		}
	}
}

// stillOwned waits one retry interval after a takeover and re-reads the
// owner token.
func (l *FileLock) stillOwned(ctx context.Context, token string) bool {
	select {
	case <-ctx.Done():
	case <-time.After(l.RetryEvery):
	}
	owner, err := l.owner()
	return err == nil && owner == token
}

func (l *FileLock) create(token, key string) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%s\n%s\n%d\n", token, key, os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func (l *FileLock) owner() (string, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(string(data), "\n")
	return first, nil
}

// removeIfStale removes an abandoned lock file. The owner token is read
// before and after the age check so a file replaced in between survives.
func (l *FileLock) removeIfStale() bool {
	if l.StaleAfter <= 0 {
		return false
	}
	seen, err := l.owner()
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	info, err := l.fs.Stat(l.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if time.Since(info.ModTime()) < l.StaleAfter {
		return false
	}
	if current, err := l.owner(); err != nil || current != seen {
		return errors.Is(err, os.ErrNotExist)
	}
	return l.fs.Remove(l.path) == nil
}

func lockError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return err
}

// hashLockKey maps a key to a non-negative int64 with FNV-1a.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
