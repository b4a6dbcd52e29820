// Package media implements the GemiFish media ingestion pipeline.
//
// Given a contact, a media locator, a declared content type, and an optional
// caption, it retrieves the asset with the configured fetcher, classifies it
// by content type, and persists it under the contact's media namespace with a
// collision-safe filename.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jalliet/UM-GemiFish/internal/models"
	"github.com/jalliet/UM-GemiFish/internal/store"
	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
)

// Typed ingestion outcomes, handled exhaustively at the conversation router.
var (
	// ErrRetrievalFailed reports that the asset could not be fetched from its
	// source locator (auth error, non-success status, network error).
	ErrRetrievalFailed = errors.New("media retrieval failed")
	// ErrUnsupportedMediaType reports a content type outside the allowed set.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrStorageFailed reports a failure writing the asset or its namespace.
	ErrStorageFailed = errors.New("media storage failed")
)

// DefaultContent is recorded for an image message without a caption.
const DefaultContent = "Image received"

// maxFilenameBase bounds a caption-derived filename base.
const maxFilenameBase = 64

// extensions maps allowed content types to their file extensions.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ExtensionFor maps a declared content type to a file extension, or
// ErrUnsupportedMediaType for anything outside the allowed set.
func ExtensionFor(contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}
	return ext, nil
}

// Ingester retrieves and stores media assets for contacts. Writes into one
// contact's namespace are serialized, so concurrent ingests deriving the same
// filename base still get distinct suffixed names.
type Ingester struct {
	fetcher twiliowhatsapp.MediaFetcher
	st      store.Store
	root    string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngester creates an ingester storing assets under root, one directory
// per contact key.
func NewIngester(fetcher twiliowhatsapp.MediaFetcher, st store.Store, root string) *Ingester {
	return &Ingester{fetcher: fetcher, st: st, root: root}
}

// lockNamespace acquires the write lock for one contact namespace and
// returns its release function. Entries are retained for the process
// lifetime; the map is bounded by the number of distinct contacts.
func (ing *Ingester) lockNamespace(key string) func() {
	ing.mu.Lock()
	if ing.locks == nil {
		ing.locks = make(map[string]*sync.Mutex)
	}
	l, ok := ing.locks[key]
	if !ok {
		l = &sync.Mutex{}
		ing.locks[key] = l
	}
	ing.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// sanitizeBase reduces a caption to a safe filename base: path separators and
// other unsafe characters become underscores, leading dots are dropped, and
// the result is length-bounded. Returns "" when nothing safe remains.
func sanitizeBase(caption string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(caption) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	base := strings.TrimLeft(b.String(), ". ")
	base = strings.TrimSpace(base)
	if len(base) > maxFilenameBase {
		base = base[:maxFilenameBase]
	}
	return base
}

// deriveBase picks the filename base: the sanitized caption when present,
// otherwise a timestamp to the second so no-caption bursts stay unique.
func deriveBase(caption string, now time.Time) string {
	if base := sanitizeBase(caption); base != "" {
		return base
	}
	return "health_image_" + now.Format("20060102_150405")
}

// uniquePath returns a path for base+ext inside dir that does not collide
// with an existing file, appending a numeric suffix when needed. The caller
// holds the namespace lock, so the chosen path stays free until written.
func uniquePath(dir, base, ext string) (string, error) {
	path := filepath.Join(dir, base+ext)
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}

// Ingest runs the full pipeline for one media event and returns the stored
// filename together with the updated contact record. Failures are reported
// as ErrRetrievalFailed, ErrUnsupportedMediaType, or ErrStorageFailed; on a
// storage failure no partial file is left behind.
func (ing *Ingester) Ingest(ctx context.Context, contactID, mediaURL, contentType, caption string) (string, *models.ContactRecord, error) {
	ext, err := ExtensionFor(contentType)
	if err != nil {
		slog.Debug("media ingest rejected content type", "content_type", contentType)
		return "", nil, err
	}

	data, err := ing.fetcher.FetchMedia(ctx, mediaURL)
	if err != nil {
		slog.Error("media ingest retrieval failed", "error", err)
		return "", nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	key, err := store.CanonicalContactID(contactID)
	if err != nil {
		return "", nil, err
	}
	dir := filepath.Join(ing.root, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("media ingest namespace creation failed", "error", err, "dir", dir)
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	unlock := ing.lockNamespace(key)
	defer unlock()

	path, err := uniquePath(dir, deriveBase(caption, time.Now()), ext)
	if err != nil {
		slog.Error("media ingest namespace scan failed", "error", err, "dir", dir)
		return "", nil, err
	}
	tmpFile, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		slog.Error("media ingest temp file failed", "error", err, "dir", dir)
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	tmp := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmp)
		slog.Error("media ingest write failed", "error", err, "path", path)
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmp)
		slog.Error("media ingest write failed", "error", err, "path", path)
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		slog.Error("media ingest rename failed", "error", err, "path", path)
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	filename := filepath.Base(path)

	content := caption
	if content == "" {
		content = DefaultContent
	}
	rec, err := ing.st.AppendMessage(contactID, models.MessageEntry{
		Timestamp:        time.Now().UTC(),
		Kind:             models.MessageKindImage,
		Content:          content,
		MediaRef:         mediaURL,
		MediaContentType: contentType,
		StoredFilename:   filename,
	})
	if err != nil {
		slog.Error("media ingest message append failed", "error", err, "key", key)
		return "", nil, err
	}

	slog.Info("media ingested", "key", key, "filename", filename, "bytes", len(data))
	return filename, rec, nil
}
