package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

// summarize builds the admin-facing overview for one record.
func summarize(rec *models.ContactRecord) models.ContactSummary {
	return models.ContactSummary{
		ContactID:       rec.ContactID,
		Name:            rec.Profile[models.ProfileFieldName],
		Age:             rec.Profile[models.ProfileFieldAge],
		Location:        rec.Profile[models.ProfileFieldLocation],
		TriageCompleted: rec.TriageCompleted,
		MessageCount:    len(rec.Messages),
	}
}

// resetTriage returns a record's triage cursor and profile to defaults while
// preserving its message history and conversation reference.
func resetTriage(rec *models.ContactRecord) {
	rec.TriageCompleted = false
	rec.TriageStep = 0
	rec.Profile = map[string]string{
		models.ProfileFieldName:     "",
		models.ProfileFieldAge:      "",
		models.ProfileFieldLocation: "",
		models.ProfileFieldConcern:  "",
	}
}

// mergeExtendedData folds key-value pairs into the record's extended data.
func mergeExtendedData(rec *models.ContactRecord, data map[string]string) {
	if len(data) == 0 {
		return
	}
	if rec.ExtendedData == nil {
		rec.ExtendedData = make(map[string]string, len(data))
	}
	for k, v := range data {
		rec.ExtendedData[k] = v
	}
}

// removeMediaNamespace deletes the contact's media directory if present.
func removeMediaNamespace(uploadsDir, key string) error {
	if uploadsDir == "" {
		return nil
	}
	dir := filepath.Join(uploadsDir, key)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove media namespace %s: %w", dir, err)
	}
	return nil
}
