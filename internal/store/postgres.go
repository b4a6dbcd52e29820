// Package store provides storage backends for GemiFish contact records.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/jalliet/UM-GemiFish/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db         *sql.DB
	uploadsDir string
	locks      keyMutex
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db, uploadsDir: cfg.UploadsDir}, nil
}

func (s *PostgresStore) saveRecord(key string, rec *models.ContactRecord) error {
	profileJSON, messagesJSON, extendedJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO contacts
		(contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (contact_key) DO UPDATE SET
			contact_id = EXCLUDED.contact_id,
			created_at = EXCLUDED.created_at,
			profile = EXCLUDED.profile,
			triage_completed = EXCLUDED.triage_completed,
			triage_step = EXCLUDED.triage_step,
			messages = EXCLUDED.messages,
			conversation_ref = EXCLUDED.conversation_ref,
			extended_data = EXCLUDED.extended_data`
	_, err = s.db.Exec(query, key, rec.ContactID, rec.CreatedAt, profileJSON,
		rec.TriageCompleted, rec.TriageStep, messagesJSON, rec.ConversationRef, extendedJSON)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) loadRecord(key string) (*models.ContactRecord, error) {
	query := `SELECT contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data
		FROM contacts WHERE contact_key = $1`
	rec, err := scanContact(s.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, models.ErrContactNotFound
	}
	if err != nil {
		slog.Error("PostgresStore load failed", "error", err, "key", key)
		return nil, err
	}
	return rec, nil
}

// Exists reports whether a record exists for the contact.
func (s *PostgresStore) Exists(contactID string) (bool, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRow(`SELECT 1 FROM contacts WHERE contact_key = $1`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create allocates a record with defaults and persists it.
func (s *PostgresStore) Create(contactID string) (*models.ContactRecord, error) {
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
		slog.Debug("PostgresStore Create contact already exists", "key", key)
		return nil, models.ErrContactExists
	}
	rec := models.NewContactRecord(contactID)
	if err := s.saveRecord(key, rec); err != nil {
		slog.Error("PostgresStore Create failed", "error", err, "key", key)
		return nil, err
	}
	slog.Info("PostgresStore contact created", "key", key)
	return rec, nil
}

// Load retrieves the record for the contact.
func (s *PostgresStore) Load(contactID string) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	return s.loadRecord(key)
}

// Save persists the full record, overwriting any prior version.
func (s *PostgresStore) Save(record *models.ContactRecord) error {
	key, err := CanonicalContactID(record.ContactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.saveRecord(key, record); err != nil {
		slog.Error("PostgresStore Save failed", "error", err, "key", key)
		return err
	}
	slog.Debug("PostgresStore Save succeeded", "key", key)
	return nil
}

// Update applies fn to the record under the contact's lock and persists it.
func (s *PostgresStore) Update(contactID string, fn func(*models.ContactRecord) error) (*models.ContactRecord, error) {
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
		slog.Error("PostgresStore Update write failed", "error", err, "key", key)
		return nil, err
	}
	slog.Debug("PostgresStore Update succeeded", "key", key)
	return rec, nil
}

// AppendMessage appends one history entry under the contact's lock.
func (s *PostgresStore) AppendMessage(contactID string, entry models.MessageEntry) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		rec.AppendMessage(entry)
		return nil
	})
}

// SetExtendedData merges key-value pairs into the contact's extended data.
func (s *PostgresStore) SetExtendedData(contactID string, data map[string]string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		mergeExtendedData(rec, data)
		return nil
	})
}

// Delete removes the record and the contact's media namespace.
func (s *PostgresStore) Delete(contactID string) error {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	res, err := s.db.Exec(`DELETE FROM contacts WHERE contact_key = $1`, key)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "key", key)
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
		slog.Error("PostgresStore Delete media namespace removal failed", "error", err, "key", key)
		return err
	}
	slog.Info("PostgresStore contact deleted", "key", key)
	return nil
}

// List enumerates summaries for every stored contact.
func (s *PostgresStore) List() ([]models.ContactSummary, error) {
	query := `SELECT contact_key, contact_id, created_at, profile, triage_completed, triage_step, messages, conversation_ref, extended_data
		FROM contacts ORDER BY created_at`
	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("PostgresStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var summaries []models.ContactSummary
	for rows.Next() {
		rec, err := scanContact(rows)
		if err != nil {
			slog.Warn("PostgresStore List skipping unreadable row", "error", err)
			continue
		}
		summaries = append(summaries, summarize(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	slog.Debug("PostgresStore List succeeded", "count", len(summaries))
	return summaries, nil
}

// ResetTriage returns triage state and profile to defaults, keeping messages.
func (s *PostgresStore) ResetTriage(contactID string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		resetTriage(rec)
		return nil
	})
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
