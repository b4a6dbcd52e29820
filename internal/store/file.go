// Package store provides storage backends for GemiFish contact records.
//
// This file implements the JSON file-per-contact backend: each record lives
// at <dir>/contact_<key>.json and is written atomically via a temp file
// rename, so readers never observe a partially written record.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

// Default locations for the file backend, relative to the working directory.
const (
	// DefaultDataDir is the default directory for contact record files.
	DefaultDataDir = "data"
	// DefaultUploadsDir is the default media namespace root.
	DefaultUploadsDir = "uploads"
	// DefaultDirPermissions defines the default permissions for created directories.
	DefaultDirPermissions = 0o755
	// DefaultFilePermissions defines the default permissions for record files.
	DefaultFilePermissions = 0o644
)

// FileStore stores contact records as individual JSON files.
type FileStore struct {
	dir        string
	uploadsDir string
	locks      keyMutex
}

// NewFileStore creates a file-backed store, creating the record directory if
// it does not exist yet.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDataDir
	}
	uploadsDir := cfg.UploadsDir
	if uploadsDir == "" {
		uploadsDir = DefaultUploadsDir
	}
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("FileStore failed to create data directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	slog.Debug("FileStore initialized", "dir", dir, "uploads_dir", uploadsDir)
	return &FileStore{dir: dir, uploadsDir: uploadsDir}, nil
}

func (s *FileStore) recordPath(key string) string {
	return filepath.Join(s.dir, "contact_"+key+".json")
}

// readRecord loads and decodes one record file. A malformed file is surfaced
// as an error for that contact only; other contacts are unaffected.
func (s *FileStore) readRecord(key string) (*models.ContactRecord, error) {
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	var rec models.ContactRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Error("FileStore record corrupted", "error", err, "key", key)
		return nil, fmt.Errorf("corrupted record %s: %w", key, err)
	}
	// A null profile would make the triage machine panic on its first write.
	if rec.Profile == nil {
		slog.Error("FileStore record corrupted", "key", key, "reason", "missing profile")
		return nil, fmt.Errorf("corrupted record %s: missing profile", key)
	}
	return &rec, nil
}

// writeRecord persists one record atomically: marshal, write a temp file in
// the same directory, then rename over the destination.
func (s *FileStore) writeRecord(key string, rec *models.ContactRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}
	path := s.recordPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace record %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a record exists for the contact.
func (s *FileStore) Exists(contactID string) (bool, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(s.recordPath(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create allocates a record with defaults and persists it.
func (s *FileStore) Create(contactID string) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	if _, statErr := os.Stat(s.recordPath(key)); statErr == nil {
		slog.Debug("FileStore Create contact already exists", "key", key)
		return nil, models.ErrContactExists
	}
	rec := models.NewContactRecord(contactID)
	if err := s.writeRecord(key, rec); err != nil {
		slog.Error("FileStore Create failed", "error", err, "key", key)
		return nil, err
	}
	slog.Info("FileStore contact created", "key", key)
	return rec, nil
}

// Load retrieves the record for the contact.
func (s *FileStore) Load(contactID string) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	return s.readRecord(key)
}

// Save persists the full record, overwriting any prior version.
func (s *FileStore) Save(record *models.ContactRecord) error {
	key, err := CanonicalContactID(record.ContactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.writeRecord(key, record); err != nil {
		slog.Error("FileStore Save failed", "error", err, "key", key)
		return err
	}
	slog.Debug("FileStore Save succeeded", "key", key)
	return nil
}

// Update applies fn to the record under the contact's lock and persists it.
func (s *FileStore) Update(contactID string, fn func(*models.ContactRecord) error) (*models.ContactRecord, error) {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	rec, err := s.readRecord(key)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.writeRecord(key, rec); err != nil {
		slog.Error("FileStore Update write failed", "error", err, "key", key)
		return nil, err
	}
	slog.Debug("FileStore Update succeeded", "key", key)
	return rec, nil
}

// AppendMessage appends one history entry under the contact's lock.
func (s *FileStore) AppendMessage(contactID string, entry models.MessageEntry) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		rec.AppendMessage(entry)
		return nil
	})
}

// SetExtendedData merges key-value pairs into the contact's extended data.
func (s *FileStore) SetExtendedData(contactID string, data map[string]string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		mergeExtendedData(rec, data)
		return nil
	})
}

// Delete removes the record and the contact's media namespace.
func (s *FileStore) Delete(contactID string) error {
	key, err := CanonicalContactID(contactID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(key)
	defer unlock()

	path := s.recordPath(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return models.ErrContactNotFound
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		slog.Error("FileStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	if err := removeMediaNamespace(s.uploadsDir, key); err != nil {
		slog.Error("FileStore Delete media namespace removal failed", "error", err, "key", key)
		return err
	}
	slog.Info("FileStore contact deleted", "key", key)
	return nil
}

// List enumerates summaries for every stored contact. A corrupted record is
// skipped with a warning rather than failing the whole listing.
func (s *FileStore) List() ([]models.ContactSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var summaries []models.ContactSummary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "contact_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "contact_"), ".json")
		rec, err := s.readRecord(key)
		if err != nil {
			slog.Warn("FileStore List skipping unreadable record", "error", err, "key", key)
			continue
		}
		summaries = append(summaries, summarize(rec))
	}
	slog.Debug("FileStore List succeeded", "count", len(summaries))
	return summaries, nil
}

// ResetTriage returns triage state and profile to defaults, keeping messages.
func (s *FileStore) ResetTriage(contactID string) (*models.ContactRecord, error) {
	return s.Update(contactID, func(rec *models.ContactRecord) error {
		resetTriage(rec)
		return nil
	})
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
