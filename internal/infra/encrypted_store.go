package infra

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const (
	recordsDBName = "records.db"

	// encryptedPollInterval backs up fsnotify in case a change event is missed.
	encryptedPollInterval = 2 * time.Second
)

// EncryptedStore implements domain.RecordStore using a SQLCipher encrypted
// SQLite database. Each key carries a version that increases on every write;
// watchers compare versions after any filesystem event on the database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger

	mu       sync.Mutex
	watchers []*fsnotify.Watcher
}

// NewEncryptedStore opens (or creates) an encrypted record database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, logger *zap.Logger) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, recordsDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on the first real query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Get returns the value stored for key.
func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value and bumps the key's version.
func (s *EncryptedStore) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = records.version + 1,
			updated_at = excluded.updated_at`,
		key, value, now,
	)
	return err
}

// Watch streams changes to key until ctx is canceled or the store is closed.
func (s *EncryptedStore) Watch(ctx context.Context, key string) (<-chan domain.Change, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.dbPath)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	lastVersion, lastValue := s.version(ctx, key)
	out := make(chan domain.Change, watchBuffer)

	go func() {
		defer close(out)
		defer w.Close()

		ticker := time.NewTicker(encryptedPollInterval)
		defer ticker.Stop()

		check := func() bool {
			version, value := s.version(ctx, key)
			if version <= lastVersion {
				return true
			}
			lastVersion = version
			if bytes.Equal(value, lastValue) {
				return true
			}
			lastValue = value
			select {
			case out <- domain.Change{Key: key, Value: value}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.Events:
				if !ok {
					return
				}
				// records.db, records.db-journal, records.db-wal
				if !strings.HasPrefix(filepath.Base(event.Name), recordsDBName) {
					continue
				}
				if !check() {
					return
				}

			case <-ticker.C:
				if !check() {
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("record watcher error",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}()

	return out, nil
}

// version returns the current version and value of key, or zero values.
func (s *EncryptedStore) version(ctx context.Context, key string) (int64, []byte) {
	var version int64
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT version, value FROM records WHERE key = ?`, key).Scan(&version, &value)
	if err != nil {
		if err != sql.ErrNoRows && ctx.Err() == nil {
			s.logger.Debug("failed to read record version",
				zap.String("key", key),
				zap.Error(err))
		}
		return 0, nil
	}
	return version, value
}

// Close stops watchers and releases the database connection.
func (s *EncryptedStore) Close() error {
	s.mu.Lock()
	for _, w := range s.watchers {
		_ = w.Close()
	}
	s.watchers = nil
	s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements domain.RecordStore.
var _ domain.RecordStore = (*EncryptedStore)(nil)
