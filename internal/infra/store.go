package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mutecomm/go-sqlcipher/v4" // Ensure sqlcipher driver is registered.
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

const (
	storeDBName = "state.db"

	// DefaultPollInterval is how often Watch re-checks the revision when no
	// filesystem event arrives.
	DefaultPollInterval = 2 * time.Second
)

// EncryptedStore implements domain.Store using a SQLCipher encrypted SQLite
// database. Writes from this process notify listeners immediately; writes
// from other processes are picked up by Watch.
type EncryptedStore struct {
	db        *sql.DB
	dbPath    string
	listeners listenerSet
	logger    *zap.Logger

	// mu guards the last observed revision and snapshot used to compute
	// deltas for writes made by other processes. It is held across local
	// writes so refresh never mistakes one of ours for a foreign write.
	mu       sync.Mutex
	revision int64
	snapshot domain.Record
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, logger *zap.Logger) (*EncryptedStore, error) {
	if err := EnsurePrivateDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Immediate transactions serialise read-modify-write updates across
	// processes; the busy timeout makes contenders wait instead of failing.
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_txlock=immediate&_busy_timeout=5000",
		dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify the key works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:       db,
		dbPath:   dbPath,
		logger:   logger,
		snapshot: make(domain.Record),
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	rev, snap, err := s.load(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	s.revision = rev
	s.snapshot = snap

	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('revision', '0');
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Get returns the requested keys that exist.
func (s *EncryptedStore) Get(ctx context.Context, keys ...string) (domain.Record, error) {
	out := make(domain.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// Set writes every key in one transaction and notifies listeners.
func (s *EncryptedStore) Set(ctx context.Context, rec domain.Record) error {
	next := make(domain.Record, len(rec))
	for k, v := range rec {
		if !json.Valid(v) {
			return fmt.Errorf("invalid JSON for key %s", k)
		}
		next[k] = compact(v)
	}

	s.mu.Lock()
	var changes domain.Changes
	rev, err := s.withTx(ctx, func(tx *sql.Tx) (int64, error) {
		prev, err := readKeys(ctx, tx, keysOf(next))
		if err != nil {
			return 0, err
		}
		changes = diff(prev, next)
		if len(changes) == 0 {
			return 0, nil
		}
		for k := range changes {
			if err := upsert(ctx, tx, k, next[k]); err != nil {
				return 0, err
			}
		}
		return bumpRevision(ctx, tx)
	})
	if err == nil {
		s.rememberLocked(changes, rev)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.listeners.notify(changes)
	return nil
}

// Update rewrites one key inside an immediate transaction, so concurrent
// updates from other processes cannot interleave.
func (s *EncryptedStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	s.mu.Lock()
	var changes domain.Changes
	rev, err := s.withTx(ctx, func(tx *sql.Tx) (int64, error) {
		prev, err := readKeys(ctx, tx, []string{key})
		if err != nil {
			return 0, err
		}
		v, err := fn(prev[key])
		if err != nil {
			return 0, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		changes = diff(prev, domain.Record{key: raw})
		if len(changes) == 0 {
			return 0, nil
		}
		if err := upsert(ctx, tx, key, raw); err != nil {
			return 0, err
		}
		return bumpRevision(ctx, tx)
	})
	if err == nil {
		s.rememberLocked(changes, rev)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.listeners.notify(changes)
	return nil
}

// Subscribe registers a change listener.
func (s *EncryptedStore) Subscribe(listener domain.ChangeListener) func() {
	return s.listeners.add(listener)
}

// Watch observes writes made by other processes until ctx is canceled.
// fsnotify events on the database directory trigger an immediate check; the
// poll ticker covers platforms where events are coalesced or missed.
func (s *EncryptedStore) Watch(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var events <-chan fsnotify.Event
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
	} else {
		defer w.Close()
		if err := w.Add(filepath.Dir(s.dbPath)); err != nil {
			s.logger.Warn("failed to watch data directory", zap.Error(err))
		} else {
			events = w.Events
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), storeDBName) {
				continue
			}
			s.refresh(ctx)
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh compares the stored revision with the last one seen and delivers
// the delta of any external writes.
func (s *EncryptedStore) refresh(ctx context.Context) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'revision'`).Scan(&raw); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("failed to read store revision", zap.Error(err))
		}
		return
	}
	rev, _ := strconv.ParseInt(raw, 10, 64)

	s.mu.Lock()
	if rev == s.revision {
		s.mu.Unlock()
		return
	}
	rev, snap, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("failed to reload store", zap.Error(err))
		return
	}
	changes := diff(s.snapshot, snap)
	s.snapshot = snap
	s.revision = rev
	s.mu.Unlock()

	s.listeners.notify(changes)
}

// rememberLocked folds a local write into the snapshot so Watch does not
// report it again. Another process may have written in between; the
// revision only advances when ours was the next one, so refresh still picks
// up the foreign write. Callers hold s.mu.
func (s *EncryptedStore) rememberLocked(changes domain.Changes, rev int64) {
	if len(changes) == 0 {
		return
	}
	for k, ch := range changes {
		s.snapshot[k] = ch.NewValue
	}
	if rev == s.revision+1 {
		s.revision = rev
	}
}

// load reads the revision and every key.
func (s *EncryptedStore) load(ctx context.Context) (int64, domain.Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'revision'`).Scan(&raw); err != nil {
		return 0, nil, err
	}
	rev, _ := strconv.ParseInt(raw, 10, 64)

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	snap := make(domain.Record)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return 0, nil, err
		}
		snap[k] = json.RawMessage(v)
	}
	return rev, snap, rows.Err()
}

// withTx runs fn in a transaction, commits it and returns fn's revision.
func (s *EncryptedStore) withTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	rev, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return rev, nil
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func keysOf(rec domain.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	return keys
}

func readKeys(ctx context.Context, tx *sql.Tx, keys []string) (domain.Record, error) {
	out := make(domain.Record, len(keys))
	for _, k := range keys {
		var v string
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, k).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

func upsert(ctx context.Context, tx *sql.Tx, key string, value json.RawMessage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, string(value), time.Now().Unix())
	return err
}

func bumpRevision(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`UPDATE meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = 'revision'`); err != nil {
		return 0, err
	}
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'revision'`).Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Ensure EncryptedStore implements domain.Store.
var _ domain.Store = (*EncryptedStore)(nil)
