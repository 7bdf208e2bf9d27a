// Package store implements the persistent key-value record store backing the
// whole service: sessions, session metadata, folders, settings, emergency
// backups, version history, and usage statistics.
//
// Records live in a single sqlite database as namespaced JSON values. Every
// write that changes a session also updates its metadata entry inside the
// same transaction so the two views never diverge. Storage failures propagate
// to the caller; retry policy belongs to the message boundary, not here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/tabvault/tabvault/internal/types"
)

// Namespaces for persisted records.
const (
	nsSession   = "session"   // key: session id -> full Session
	nsMeta      = "meta"      // key: "list" -> ordered []SessionMetadata
	nsFolders   = "folders"   // key: "list" -> []Folder
	nsSettings  = "settings"  // key: "settings" -> Settings
	nsEmergency = "emergency" // key: "list" -> bounded []Session, newest first
	nsVersions  = "versions"  // key: session id -> []SessionVersion, newest first
	nsStats     = "stats"     // key: "stats" -> Statistics
	nsRecovery  = "recovery"  // key: "crash" -> crash marker timestamp
)

const (
	listKey     = "list"
	settingsKey = "settings"
	statsKey    = "stats"
	crashKey    = "crash"
)

// Store is the sqlite-backed record store.
type Store struct {
	db *sql.DB
}

// Open initializes the database under baseDir and returns a ready store.
// The baseDir parameter lets tests point at t.TempDir().
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "tabvault.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
	  ns TEXT NOT NULL,
	  k  TEXT NOT NULL,
	  v  BLOB NOT NULL,
	  PRIMARY KEY (ns, k)
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// get unmarshals the record at (ns, key) into out. Returns false when the
// record does not exist.
func (s *Store) get(ctx context.Context, q queryer, ns, key string, out interface{}) (bool, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT v FROM records WHERE ns = ? AND k = ?`, ns, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", ns, key, err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", ns, key, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, q execer, ns, key string, value interface{}) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, key, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO records (ns, k, v) VALUES (?, ?, ?)
		 ON CONFLICT (ns, k) DO UPDATE SET v = excluded.v`, ns, key, raw)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, q execer, ns, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM records WHERE ns = ? AND k = ?`, ns, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveSession upserts the full session record and its metadata entry in one
// transaction. New sessions are prepended to the metadata list to preserve
// most-recent-first ordering; existing ones are replaced in place.
func (s *Store) SaveSession(ctx context.Context, session *types.Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.put(ctx, tx, nsSession, session.ID, session); err != nil {
			return err
		}

		var metas []types.SessionMetadata
		if _, err := s.get(ctx, tx, nsMeta, listKey, &metas); err != nil {
			return err
		}

		meta := session.ToMetadata()
		replaced := false
		for i := range metas {
			if metas[i].ID == meta.ID {
				metas[i] = meta
				replaced = true
				break
			}
		}
		if !replaced {
			metas = append([]types.SessionMetadata{meta}, metas...)
		}

		return s.put(ctx, tx, nsMeta, listKey, metas)
	})
}

// GetSession returns the stored session, or nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var session types.Session
	found, err := s.get(ctx, s.db, nsSession, id, &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &session, nil
}

// DeleteSession removes the full record, its metadata entry, and its version
// history in one transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.remove(ctx, tx, nsSession, id); err != nil {
			return err
		}

		var metas []types.SessionMetadata
		if _, err := s.get(ctx, tx, nsMeta, listKey, &metas); err != nil {
			return err
		}
		filtered := metas[:0]
		for _, m := range metas {
			if m.ID != id {
				filtered = append(filtered, m)
			}
		}
		if err := s.put(ctx, tx, nsMeta, listKey, filtered); err != nil {
			return err
		}

		return s.remove(ctx, tx, nsVersions, id)
	})
}

// ListMetadata returns the metadata list, most recent first.
func (s *Store) ListMetadata(ctx context.Context) ([]types.SessionMetadata, error) {
	var metas []types.SessionMetadata
	if _, err := s.get(ctx, s.db, nsMeta, listKey, &metas); err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []types.SessionMetadata{}
	}
	return metas, nil
}

// GetFolders returns all folders.
func (s *Store) GetFolders(ctx context.Context) ([]types.Folder, error) {
	var folders []types.Folder
	if _, err := s.get(ctx, s.db, nsFolders, listKey, &folders); err != nil {
		return nil, err
	}
	if folders == nil {
		folders = []types.Folder{}
	}
	return folders, nil
}

// SaveFolders replaces the folder list.
func (s *Store) SaveFolders(ctx context.Context, folders []types.Folder) error {
	return s.put(ctx, s.db, nsFolders, listKey, folders)
}

// GetSettings returns stored settings merged over defaults, so fields added
// after the record was written backfill transparently.
func (s *Store) GetSettings(ctx context.Context) (types.Settings, error) {
	settings := types.DefaultSettings()
	if _, err := s.get(ctx, s.db, nsSettings, settingsKey, &settings); err != nil {
		return types.DefaultSettings(), err
	}
	return settings, nil
}

// SaveSettings replaces the settings record.
func (s *Store) SaveSettings(ctx context.Context, settings types.Settings) error {
	return s.put(ctx, s.db, nsSettings, settingsKey, settings)
}

// GetEmergencySessions returns the emergency ring buffer, newest first.
func (s *Store) GetEmergencySessions(ctx context.Context) ([]types.Session, error) {
	var sessions []types.Session
	if _, err := s.get(ctx, s.db, nsEmergency, listKey, &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	return sessions, nil
}

// PushEmergencySession prepends a session to the emergency ring buffer and
// evicts the oldest entries beyond max.
func (s *Store) PushEmergencySession(ctx context.Context, session *types.Session, max int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sessions []types.Session
		if _, err := s.get(ctx, tx, nsEmergency, listKey, &sessions); err != nil {
			return err
		}
		sessions = append([]types.Session{*session}, sessions...)
		if max > 0 && len(sessions) > max {
			sessions = sessions[:max]
		}
		return s.put(ctx, tx, nsEmergency, listKey, sessions)
	})
}

// ClearEmergencySessions empties the ring buffer.
func (s *Store) ClearEmergencySessions(ctx context.Context) error {
	return s.remove(ctx, s.db, nsEmergency, listKey)
}

// GetVersions returns the version history for a session, newest first.
func (s *Store) GetVersions(ctx context.Context, sessionID string) ([]types.SessionVersion, error) {
	var versions []types.SessionVersion
	if _, err := s.get(ctx, s.db, nsVersions, sessionID, &versions); err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []types.SessionVersion{}
	}
	return versions, nil
}

// SaveVersions replaces a session's version history.
func (s *Store) SaveVersions(ctx context.Context, sessionID string, versions []types.SessionVersion) error {
	return s.put(ctx, s.db, nsVersions, sessionID, versions)
}

// DeleteVersions removes a session's entire version history.
func (s *Store) DeleteVersions(ctx context.Context, sessionID string) error {
	return s.remove(ctx, s.db, nsVersions, sessionID)
}

// GetStatistics returns the usage counters.
func (s *Store) GetStatistics(ctx context.Context) (types.Statistics, error) {
	var stats types.Statistics
	if _, err := s.get(ctx, s.db, nsStats, statsKey, &stats); err != nil {
		return types.Statistics{}, err
	}
	return stats, nil
}

// AddStatistics additively applies the delta to the stored counters and
// stamps the last-use time.
func (s *Store) AddStatistics(ctx context.Context, delta types.Statistics) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var stats types.Statistics
		if _, err := s.get(ctx, tx, nsStats, statsKey, &stats); err != nil {
			return err
		}
		stats.SessionsSaved += delta.SessionsSaved
		stats.TabsSaved += delta.TabsSaved
		stats.SessionsRestored += delta.SessionsRestored
		stats.TabsRestored += delta.TabsRestored
		now := time.Now().UnixMilli()
		stats.LastUsedAt = &now
		return s.put(ctx, tx, nsStats, statsKey, stats)
	})
}

// ClearStatistics resets all counters.
func (s *Store) ClearStatistics(ctx context.Context) error {
	return s.remove(ctx, s.db, nsStats, statsKey)
}

// GetCrashMarker returns the durable crash-detected timestamp, if set.
func (s *Store) GetCrashMarker(ctx context.Context) (*time.Time, error) {
	var millis int64
	found, err := s.get(ctx, s.db, nsRecovery, crashKey, &millis)
	if err != nil || !found {
		return nil, err
	}
	ts := time.UnixMilli(millis)
	return &ts, nil
}

// SetCrashMarker persists the crash-detected timestamp.
func (s *Store) SetCrashMarker(ctx context.Context, ts time.Time) error {
	return s.put(ctx, s.db, nsRecovery, crashKey, ts.UnixMilli())
}

// ClearCrashMarker acknowledges and clears the crash marker.
func (s *Store) ClearCrashMarker(ctx context.Context) error {
	return s.remove(ctx, s.db, nsRecovery, crashKey)
}
