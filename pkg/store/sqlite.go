package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/persona"
)

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the persona database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create persona db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single shared connection avoids writer lock contention with SQLite
	// under concurrent goroutines, and serializes same-identity appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS identities (
			identity_key TEXT PRIMARY KEY,
			external_id TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS identities_persona_idx ON identities(persona_id);`,
		`CREATE TABLE IF NOT EXISTS persona_records (
			persona_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			identity_key TEXT NOT NULL,
			persona_json TEXT NOT NULL,
			model_prefs_json TEXT NOT NULL DEFAULT '{}',
			custom_data_json TEXT NOT NULL DEFAULT '{}',
			last_modified_ms INTEGER NOT NULL,
			PRIMARY KEY (persona_id, version)
		);`,
		`CREATE INDEX IF NOT EXISTS persona_records_identity_idx ON persona_records(identity_key, version DESC);`,
		`CREATE TABLE IF NOT EXISTS account_bundles (
			identity_key TEXT PRIMARY KEY,
			bundle_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init persona db: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, identity Identity) (string, error) {
	key := identity.Key()
	if key == "" {
		return "", fmt.Errorf("ensure user: %w", ErrNotFound)
	}

	var handle string
	err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM identities WHERE identity_key = ?`, key).Scan(&handle)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("ensure user: %w", err)
	}

	handle = "usr-" + uuid.NewString()
	personaID := "per-" + uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (identity_key, external_id, email, handle, persona_id, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identity_key) DO NOTHING`,
		key, identity.ExternalID, identity.Email, handle, personaID, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}

	// Re-read in case a concurrent caller won the insert.
	if err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM identities WHERE identity_key = ?`, key).Scan(&handle); err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	return handle, nil
}

func (s *SQLiteStore) personaIDForKey(ctx context.Context, key string) (string, error) {
	var personaID string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona_id FROM identities WHERE identity_key = ?`, key).Scan(&personaID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return personaID, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, identity Identity, p persona.Persona,
	modelPreferences map[string]string, customData map[string]interface{}) (AppendResult, error) {
	if _, err := s.EnsureUser(ctx, identity); err != nil {
		return AppendResult{}, err
	}
	personaID, err := s.personaIDForKey(ctx, identity.Key())
	if err != nil {
		return AppendResult{}, fmt.Errorf("upsert persona: %w", err)
	}

	rec := persona.Record{
		ID:               personaID,
		Persona:          p,
		ModelPreferences: modelPreferences,
		CustomData:       customData,
	}
	return s.append(ctx, identity.Key(), rec)
}

// append writes the next version for a persona inside one transaction.
// The (persona_id, version) primary key turns a lost read-then-append race
// into ErrConflict instead of a gap or an overwrite.
func (s *SQLiteStore) append(ctx context.Context, identityKey string, rec persona.Record) (AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append persona: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM persona_records WHERE persona_id = ?`, rec.ID).Scan(&latest); err != nil {
		return AppendResult{}, fmt.Errorf("append persona: read latest: %w", err)
	}
	rec.Version = int(latest.Int64) + 1
	rec.LastModified = time.Now().UTC()

	personaJSON, err := json.Marshal(rec.Persona)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append persona: marshal persona: %w", err)
	}
	prefsJSON, err := json.Marshal(orEmptyPrefs(rec.ModelPreferences))
	if err != nil {
		return AppendResult{}, fmt.Errorf("append persona: marshal preferences: %w", err)
	}
	customJSON, err := json.Marshal(orEmptyCustom(rec.CustomData))
	if err != nil {
		return AppendResult{}, fmt.Errorf("append persona: marshal custom data: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO persona_records
		 (persona_id, version, identity_key, persona_json, model_prefs_json, custom_data_json, last_modified_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Version, identityKey, string(personaJSON), string(prefsJSON), string(customJSON),
		rec.LastModified.UnixMilli())
	if isUniqueViolation(err) {
		return AppendResult{}, fmt.Errorf("append persona %s version %d: %w", rec.ID, rec.Version, ErrConflict)
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("append persona: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("append persona: %w", err)
	}
	return AppendResult{ID: rec.ID, Version: rec.Version, LastModified: rec.LastModified}, nil
}

func (s *SQLiteStore) GetCurrent(ctx context.Context, identity Identity) (persona.Record, error) {
	personaID, err := s.personaIDForKey(ctx, identity.Key())
	if err != nil {
		return persona.Record{}, fmt.Errorf("get current: %w", err)
	}
	return s.latest(ctx, personaID)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (persona.Record, error) {
	return s.latest(ctx, id)
}

func (s *SQLiteStore) latest(ctx context.Context, personaID string) (persona.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT persona_id, version, persona_json, model_prefs_json, custom_data_json, last_modified_ms
		 FROM persona_records WHERE persona_id = ? ORDER BY version DESC LIMIT 1`, personaID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return persona.Record{}, fmt.Errorf("get persona %s: %w", personaID, ErrNotFound)
	}
	if err != nil {
		return persona.Record{}, fmt.Errorf("get persona %s: %w", personaID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateField(ctx context.Context, ref, fieldPath string, value interface{}) (AppendResult, error) {
	personaID := ref
	identityKey := ""
	if id, err := s.personaIDForKey(ctx, ref); err == nil {
		personaID = id
		identityKey = ref
	} else if !errors.Is(err, ErrNotFound) {
		return AppendResult{}, fmt.Errorf("update field: %w", err)
	}
	if identityKey == "" {
		var err error
		identityKey, err = s.identityKeyForPersona(ctx, personaID)
		if err != nil {
			return AppendResult{}, fmt.Errorf("update field %s: %w", ref, err)
		}
	}

	next, err := s.latest(ctx, personaID)
	if err != nil {
		return AppendResult{}, err
	}
	next = next.Clone()
	if err := applyFieldPath(&next, fieldPath, value); err != nil {
		return AppendResult{}, err
	}
	return s.append(ctx, identityKey, next)
}

func (s *SQLiteStore) identityKeyForPersona(ctx context.Context, personaID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT identity_key FROM identities WHERE persona_id = ?`, personaID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return key, err
}

func (s *SQLiteStore) GetHistory(ctx context.Context, identity Identity) ([]persona.Record, error) {
	personaID, err := s.personaIDForKey(ctx, identity.Key())
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT persona_id, version, persona_json, model_prefs_json, custom_data_json, last_modified_ms
		 FROM persona_records WHERE persona_id = ? ORDER BY version DESC`, personaID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []persona.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Rollback(ctx context.Context, id string, toVersion int) (AppendResult, error) {
	identityKey, err := s.identityKeyForPersona(ctx, id)
	if err != nil {
		return AppendResult{}, fmt.Errorf("rollback %s: %w", id, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT persona_id, version, persona_json, model_prefs_json, custom_data_json, last_modified_ms
		 FROM persona_records WHERE persona_id = ? AND version = ?`, id, toVersion)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AppendResult{}, fmt.Errorf("rollback %s to version %d: %w", id, toVersion, ErrNotFound)
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("rollback %s: %w", id, err)
	}
	return s.append(ctx, identityKey, rec)
}

func (s *SQLiteStore) SaveAccountBundle(ctx context.Context, identity Identity, bundle *accounts.Bundle) error {
	if _, err := s.EnsureUser(ctx, identity); err != nil {
		return err
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("save account bundle: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account_bundles (identity_key, bundle_json, updated_at_ms)
		 VALUES (?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET
			bundle_json = excluded.bundle_json,
			updated_at_ms = excluded.updated_at_ms`,
		identity.Key(), string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save account bundle: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccountBundle(ctx context.Context, identity Identity) (*accounts.Bundle, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT bundle_json FROM account_bundles WHERE identity_key = ?`, identity.Key()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account bundle: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account bundle: %w", err)
	}
	var bundle accounts.Bundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, fmt.Errorf("get account bundle: decode: %w", err)
	}
	return &bundle, nil
}

func (s *SQLiteStore) Identities(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, email FROM identities ORDER BY identity_key`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.ExternalID, &id.Email); err != nil {
			return nil, fmt.Errorf("list identities: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (persona.Record, error) {
	var (
		rec            persona.Record
		personaJSON    string
		prefsJSON      string
		customJSON     string
		lastModifiedMS int64
	)
	if err := row.Scan(&rec.ID, &rec.Version, &personaJSON, &prefsJSON, &customJSON, &lastModifiedMS); err != nil {
		return persona.Record{}, err
	}
	if err := json.Unmarshal([]byte(personaJSON), &rec.Persona); err != nil {
		return persona.Record{}, fmt.Errorf("decode persona: %w", err)
	}
	if err := json.Unmarshal([]byte(prefsJSON), &rec.ModelPreferences); err != nil {
		return persona.Record{}, fmt.Errorf("decode preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(customJSON), &rec.CustomData); err != nil {
		return persona.Record{}, fmt.Errorf("decode custom data: %w", err)
	}
	rec.LastModified = time.UnixMilli(lastModifiedMS).UTC()
	return rec, nil
}

func orEmptyPrefs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyCustom(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
