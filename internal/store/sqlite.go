// Package store provides storage backends for GemiFish contact records.
//
// This file implements the SQLite-backed store. The full record is persisted
// in a single row per contact, so every save is atomic from the caller's
// perspective.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/jalliet/UM-GemiFish/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db         *sql.DB
	uploadsDir string
	locks      keyMutex
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, uploadsDir: cfg.UploadsDir}, nil
}

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanContact decodes one contacts row into a record. A row that fails to
// decode is reported for that contact only.
func scanContact(row rowScanner) (*models.ContactRecord, error) {
	var rec models.ContactRecord
	var contactKey, profileJSON, messagesJSON string
	var extendedJSON sql.NullString
	err := row.Scan(&contactKey, &rec.ContactID, &rec.CreatedAt, &profileJSON,
		&rec.TriageCompleted, &rec.TriageStep, &messagesJSON, &rec.ConversationRef, &extendedJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(profileJSON), &rec.Profile); err != nil {
		return nil, fmt.Errorf("corrupted profile for %s: %w", contactKey, err)
	}
	// "null" decodes cleanly into a nil map; treat it as corruption too.
	if rec.Profile == nil {
		return nil, fmt.Errorf("corrupted profile for %s: missing profile", contactKey)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("corrupted messages for %s: %w", contactKey, err)
	}
	if extendedJSON.Valid && extendedJSON.String != "" {
		if err := json.Unmarshal([]byte(extendedJSON.String), &rec.ExtendedData); err != nil {
			return nil, fmt.Errorf("corrupted extended data for %s: %w", contactKey, err)
		}
	}
	return &rec, nil
}

// encodeRecord marshals the record's JSON columns. Extended data encodes to
// nil when absent so the column round-trips the empty-vs-absent distinction.
func encodeRecord(rec *models.ContactRecord) (profileJSON, messagesJSON string, extendedJSON interface{}, err error) {
	profileBytes, err := json.Marshal(rec.Profile)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	if rec.Messages == nil {
		rec.Messages = []models.MessageEntry{}
	}
	messageBytes, err := json.Marshal(rec.Messages)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	extendedJSON = nil
	if len(rec.ExtendedData) > 0 {
		extendedBytes, err := json.Marshal(rec.ExtendedData)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to marshal extended data: %w", err)
		}
		extendedJSON = string(extendedBytes)
	}
	return string(profileBytes), string(messageBytes), extendedJSON, nil
}

func (s *SQLiteStore) saveRecord(key string, rec *models.ContactRecord) error {
	profileJSON, messagesJSON, extendedJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO contacts
		(contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, key, rec.ContactID, rec.CreatedAt, profileJSON,
		rec.TriageCompleted, rec.TriageStep, messagesJSON, rec.ConversationRef, extendedJSON)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) loadRecord(key string) (*models.ContactRecord, error) {
	query := `SELECT contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data
		FROM contacts WHERE contact_key = ?`
	rec, err := scanContact(s.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, models.ErrContactNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore load failed", "error", err, "key", key)
		return nil, err
	}
	return rec, nil
}

// Exists reports whether a record exists for the contact.
func (s *SQLiteStore) Exists(contactID string) (bool, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRow(`SELECT 1 FROM contacts WHERE contact_key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create allocates a record with defaults and persists it.
func (s *SQLiteStore) Create(contactID string) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	exists, err := s.Exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		slog.Debug("SQLiteStore Create contact already exists", "key", key)
		return nil, models.ErrContactExists
	}
	rec := models.NewContactRecord(contactID)
	if err := s.saveRecord(key, rec); err != nil {
		slog.Error("SQLiteStore Create failed", "error", err, "key", key)
		return nil, err
	}
	slog.Info("SQLiteStore contact created", "key", key)
	return rec, nil
}

// Load retrieves the record for the contact.
func (s *SQLiteStore) Load(contactID string) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	return s.loadRecord(key)
}

// Save persists the full record, overwriting any prior version.
func (s *SQLiteStore) Save(record *models.ContactRecord) error {
	key, err := CanonicalContactID(record.ContactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.saveRecord(key, record); err != nil {
		slog.Error("SQLiteStore Save failed", "error", err, "key", key)
		return err
	}
	slog.Debug("SQLiteStore Save succeeded", "key", key)
	return nil
}

// Update applies fn to the record under the contact's lock and persists it.
func (s *SQLiteStore) Update(contactID string, fn func(*models.ContactRecord) error) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	rec, err := s.loadRecord(key)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.saveRecord(key, rec); err != nil {
		slog.Error("SQLiteStore Update write failed", "error", err, "key", key)
		return nil, err
	}
	slog.Debug("SQLiteStore Update succeeded", "key", key)
	return rec, nil
}

// AppendMessage appends one history entry under the contact's lock.
func (s *SQLiteStore) AppendMessage(contactID string, entry models.MessageEntry) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		rec.AppendMessage(entry)
		return nil
	})
}

// SetExtendedData merges key-value pairs into the contact's extended data.
func (s *SQLiteStore) SetExtendedData(contactID string, data map[string]string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		mergeExtendedData(rec, data)
		return nil
	})
}

// Delete removes the record and the contact's media namespace.
func (s *SQLiteStore) Delete(contactID string) error {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	res, err := s.db.Exec(`DELETE FROM contacts WHERE contact_key = ?`, key)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrContactNotFound
	}
	if err := removeMediaNamespace(s.uploadsDir, key); err != nil {
		slog.Error("SQLiteStore Delete media namespace removal failed", "error", err, "key", key)
		return err
	}
	slog.Info("SQLiteStore contact deleted", "key", key)
	return nil
}

// List enumerates summaries for every stored contact. A corrupted row is
// skipped with a warning rather than failing the whole listing.
func (s *SQLiteStore) List() ([]models.ContactSummary, error) {
	query := `SELECT contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data
		FROM contacts ORDER BY created_at`
	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("SQLiteStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var summaries []models.ContactSummary
	for rows.Next() {
		rec, err := scanContact(rows)
		if err != nil {
			slog.Warn("SQLiteStore List skipping unreadable row", "error", err)
			continue
		}
		summaries = append(summaries, summarize(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	slog.Debug("SQLiteStore List succeeded", "count", len(summaries))
	return summaries, nil
}

// ResetTriage returns triage state and profile to defaults, keeping messages.
func (s *SQLiteStore) ResetTriage(contactID string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		resetTriage(rec)
		return nil
	})
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// compile-time interface check
var _ Store = (*SQLiteStore)(nil)
