package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// BaseTime is a fixed capture time for fixtures.
var BaseTime = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

// MatchRecord builds a match record for team captured at BaseTime plus
// offset.
func MatchRecord(team int, offset time.Duration) models.Record {
	payload := json.RawMessage(fmt.Sprintf(`{"team":%d,"autoPoints":%d,"notes":"fixture"}`, team, team%17))
	return models.NewRecord(models.RecordMatch, fmt.Sprintf("%d", team), payload, BaseTime.Add(offset))
}

// PitRecord builds a pit record for team captured at BaseTime plus offset.
func PitRecord(team int, offset time.Duration) models.Record {
	payload := json.RawMessage(fmt.Sprintf(`{"team":%d,"drivetrain":"swerve"}`, team))
	return models.NewRecord(models.RecordPit, fmt.Sprintf("team-%d", team), payload, BaseTime.Add(offset))
}

// Touched returns a copy of rec with a later lastModified and new payload.
func Touched(rec models.Record, by time.Duration, payload string) models.Record {
	rec.LastModified += by.Milliseconds()
	rec.Payload = json.RawMessage(payload)
	return rec
}
