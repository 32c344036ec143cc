package storage

import (
	"errors"
	"strings"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// SaveRecord writes rec to its deterministic path and returns that path.
func SaveRecord(h Handle, rec *models.Record) (string, error) {
	data, err := rec.Encode()
	if err != nil {
		return "", &models.SerializationError{Source: "record " + rec.ID, Err: err}
	}

	relPath := rec.RelativePath()
	if err := WriteFile(h, relPath, data); err != nil {
		return "", err
	}

	return relPath, nil
}

// LoadRecord reads and decodes the record stored at relPath.
func LoadRecord(h Handle, relPath string) (*models.Record, error) {
	data, err := ReadFile(h, relPath)
	if err != nil {
		return nil, err
	}

	rec, err := models.DecodeRecord(data)
	if err != nil {
		var serErr *models.SerializationError
		if errors.As(err, &serErr) {
			serErr.Source = relPath
		}
		return nil, err
	}

	return rec, nil
}

// LoadAll reads every record of type t keyed by normalized identifier.
// Malformed files are returned in skipped; err reports a listing failure.
func LoadAll(h Handle, t models.RecordType) (records map[string]*models.Record, skipped []error, err error) {
	names, err := ListFiles(h, t.Area())
	if err != nil {
		return nil, nil, err
	}

	records = make(map[string]*models.Record, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		rec, err := LoadRecord(h, t.Area()+"/"+name)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		records[models.NormalizeID(rec.ID)] = rec
	}

	return records, skipped, nil
}
