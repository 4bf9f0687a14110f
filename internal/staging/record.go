package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

// RecordPath returns the location of the persisted job record for a ticket
func RecordPath(resultsRoot, ticket string) string {
	return filepath.Join(resultsRoot, ticket, outDirName, recordFileName)
}

// ArtifactPath returns the location of the persisted result image for a
// ticket
func ArtifactPath(resultsRoot, ticket string) string {
	return filepath.Join(resultsRoot, ticket, outDirName, artifactName)
}

// writeRecord marshals the record and moves it into place with a rename so
// readers only ever see complete files
func writeRecord(outDir string, record *models.JobRecord, log *zap.Logger) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	tmp, err := os.CreateTemp(outDir, recordFileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temporary record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write job record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close job record: %w", err)
	}

	path := filepath.Join(outDir, recordFileName)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize job record: %w", err)
	}

	log.Info("result saved",
		zap.String("path", path),
		zap.String("status", string(record.Status)))
	return nil
}

// LoadRecord reads the persisted record for a ticket. A missing record yields
// a not_found status and an unparsable or invalid one yields
// contents_malformed, so lookup never fails.
func LoadRecord(resultsRoot, ticket string) *models.JobRecord {
	record := models.NewJobRecord()

	if err := models.ValidateTicket(ticket); err != nil {
		record.Status = models.StatusNotFound
		record.Payload = "No test results found"
		return record
	}

	data, err := os.ReadFile(RecordPath(resultsRoot, ticket))
	if err != nil {
		record.Status = models.StatusNotFound
		record.Payload = "No test results found"
		return record
	}

	var loaded models.JobRecord
	if err := json.Unmarshal(data, &loaded); err != nil || !loaded.Status.Valid() {
		record.Status = models.StatusContentsMalformed
		record.Payload = "Test result malformed"
		return record
	}

	return &loaded
}
