// Package store provides storage backends for GemiFish contact records.
//
// A Store holds one record per normalized contact identifier plus a parallel
// media namespace per contact. Backends: JSON file-per-contact (default),
// SQLite, and PostgreSQL. All backends serialize read-modify-write access per
// contact key, so concurrent events for the same contact cannot lose updates;
// requests for different contacts do not block one another.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

// Store is the contact record storage contract shared by all backends.
//
// Methods accept raw or already-normalized contact identifiers; normalization
// is idempotent, so both map to the same record.
type Store interface {
	// Exists reports whether a record exists for the contact.
	Exists(contactID string) (bool, error)

	// Create allocates a record with default values and persists it.
	// Returns models.ErrContactExists if a record is already present.
	Create(contactID string) (*models.ContactRecord, error)

	// Load retrieves the record, or models.ErrContactNotFound.
	Load(contactID string) (*models.ContactRecord, error)

	// Save persists the full record, overwriting any prior version. A reader
	// never observes a partially written record.
	Save(record *models.ContactRecord) error

	// Update applies fn to the record under the contact's lock and persists
	// the result. This is the serialized read-modify-write primitive; all
	// triage mutations go through it.
	Update(contactID string, fn func(*models.ContactRecord) error) (*models.ContactRecord, error)

	// AppendMessage appends one history entry under the contact's lock.
	AppendMessage(contactID string, entry models.MessageEntry) (*models.ContactRecord, error)

	// SetExtendedData merges key-value pairs into the contact's extended
	// data under the contact's lock.
	SetExtendedData(contactID string, data map[string]string) (*models.ContactRecord, error)

	// Delete removes the record and the contact's media namespace.
	Delete(contactID string) error

	// List enumerates summaries for every stored contact.
	List() ([]models.ContactSummary, error)

	// ResetTriage returns triage state and profile to defaults while
	// preserving message history.
	ResetTriage(contactID string) (*models.ContactRecord, error)

	// Close releases backend resources.
	Close() error
}

// CanonicalContactID normalizes a raw contact identifier into the storage
// key: the channel prefix and punctuation are stripped. The mapping is
// deterministic and idempotent, so the same raw input always yields the same
// key and an already-normalized key passes through unchanged.
func CanonicalContactID(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "whatsapp:")
	key = strings.ReplaceAll(key, ":", "")
	key = strings.ReplaceAll(key, "+", "")
	if key == "" {
		return "", models.ErrEmptyContactID
	}
	return key, nil
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
// PostgreSQL DSNs use a URL scheme or key=value connection parameters; plain
// file paths are treated as SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string for SQL backends.
	DSN string
	// Dir is the directory for the JSON file backend.
	Dir string
	// UploadsDir is the root of the per-contact media namespaces; Delete
	// removes the contact's namespace beneath it.
	UploadsDir string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithFileDir configures the directory used by the JSON file backend.
func WithFileDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithUploadsDir configures the media namespace root shared by all backends.
func WithUploadsDir(dir string) Option {
	return func(o *Opts) { o.UploadsDir = dir }
}

// NewStore constructs a backend from the provided options: a SQL store when a
// DSN is configured (auto-detected via DetectDSNType), otherwise the JSON
// file store.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("NewStore using file backend", "dir", cfg.Dir)
		return NewFileStore(opts...)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("NewStore using PostgreSQL backend", "dsn_set", true)
		return NewPostgresStore(opts...)
	}
	slog.Debug("NewStore using SQLite backend", "db_path", cfg.DSN)
	return NewSQLiteStore(opts...)
}

// keyMutex provides one mutex per contact key. Entries are retained for the
// process lifetime; the map is bounded by the number of distinct contacts.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its release function.
func (k *keyMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
