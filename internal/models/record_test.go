package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

func TestParseRecordType(t *testing.T) {
	tests := []struct {
		in      string
		want    models.RecordType
		wantErr bool
	}{
		{in: "match", want: models.RecordMatch},
		{in: "Matches", want: models.RecordMatch},
		{in: " pit ", want: models.RecordPit},
		{in: "alliance", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := models.ParseRecordType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordTypeArea(t *testing.T) {
	assert.Equal(t, "matches", models.RecordMatch.Area())
	assert.Equal(t, "pit", models.RecordPit.Area())
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already safe", in: "match_254_20240301120000123", want: "match_254_20240301120000123"},
		{name: "path separators", in: "../etc/passwd", want: "_etc_passwd"},
		{name: "spaces", in: "team 254 qm1", want: "team_254_qm1"},
		{name: "leading dots", in: "..hidden", want: "hidden"},
		{name: "nfc composition", in: "équipe", want: "équipe"},
		{name: "trimmed", in: "  pit_1  ", want: "pit_1"},
		{name: "empty", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.NormalizeID(tt.in))
		})
	}
}

func TestNewIdentifier(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

	id := models.NewIdentifier(models.RecordMatch, "254", at)
	assert.Equal(t, "match_254_20240301123045123", id)

	later := models.NewIdentifier(models.RecordMatch, "254", at.Add(time.Millisecond))
	assert.Less(t, id, later)

	pit := models.NewIdentifier(models.RecordPit, "team 971", at)
	assert.Equal(t, "pit_team_971_20240301123045123", pit)
}

func TestRecordPaths(t *testing.T) {
	rec := &models.Record{ID: "match_254_1", Type: models.RecordMatch}
	assert.Equal(t, "match_254_1.json", rec.FileName())
	assert.Equal(t, "matches/match_254_1.json", rec.RelativePath())

	pit := &models.Record{ID: "pit/971", Type: models.RecordPit}
	assert.Equal(t, "pit/pit_971.json", pit.RelativePath())
}

func TestRecordValidate(t *testing.T) {
	valid := models.Record{
		ID:           "match_1",
		Type:         models.RecordMatch,
		Payload:      json.RawMessage(`{"score":12}`),
		LastModified: 1000,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *models.Record)
	}{
		{name: "empty id", mutate: func(r *models.Record) { r.ID = "" }},
		{name: "bad type", mutate: func(r *models.Record) { r.Type = "alliance" }},
		{name: "zero timestamp", mutate: func(r *models.Record) { r.LastModified = 0 }},
		{name: "bad payload", mutate: func(r *models.Record) { r.Payload = json.RawMessage(`{`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), models.ErrInvalidRecord)
		})
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := &models.Record{
		ID:           "pit_971_1",
		Type:         models.RecordPit,
		Payload:      json.RawMessage(`{"drivetrain":"swerve"}`),
		LastModified: 1700000000000,
	}

	data, err := rec.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lastModified": 1700000000000`)
	assert.Contains(t, string(data), `"syncState": "unsynced"`)

	got, err := models.DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, models.SyncUnsynced, got.SyncState)
	assert.JSONEq(t, `{"drivetrain":"swerve"}`, string(got.Payload))
}

func TestDecodeRecordMalformed(t *testing.T) {
	inputs := map[string]string{
		"truncated":    `{"id":"x"`,
		"missing type": `{"id":"x","lastModified":5}`,
		"not object":   `[1,2,3]`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := models.DecodeRecord([]byte(in))
			var serErr *models.SerializationError
			assert.True(t, errors.As(err, &serErr))
		})
	}
}

func TestWithState(t *testing.T) {
	rec := models.Record{ID: "a", SyncState: models.SyncUnsynced}
	synced := rec.WithState(models.SyncSynced)

	assert.Equal(t, models.SyncSynced, synced.SyncState)
	assert.Equal(t, models.SyncUnsynced, rec.SyncState)
}

func TestQueueEntry(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	entry := models.NewQueueEntry(models.RecordMatch, "matches/a.json", now)

	assert.Equal(t, int64(1700000000123), entry.CreatedAt)
	assert.True(t, entry.Created().Equal(now))

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"match","relativePath":"matches/a.json","createdAt":1700000000123}`, string(data))
}

func TestNewRecord(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 42*int(time.Millisecond), time.UTC)
	rec := models.NewRecord(models.RecordPit, "team 254", json.RawMessage(`{"drive":"swerve"}`), at)

	assert.Equal(t, "pit_team_254_20240309140507042", rec.ID)
	assert.Equal(t, at.UnixMilli(), rec.LastModified)
	assert.Equal(t, models.SyncUnsynced, rec.SyncState)
	require.NoError(t, rec.Validate())
}
