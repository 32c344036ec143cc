package models

import "time"

// QueueEntry references a durable local write still awaiting remote
// confirmation.
type QueueEntry struct {
	Type         RecordType `json:"type"`
	RelativePath string     `json:"relativePath"`
	CreatedAt    int64      `json:"createdAt"` // Unix milliseconds
}

// NewQueueEntry creates an entry for the record stored at relativePath.
func NewQueueEntry(t RecordType, relativePath string, now time.Time) QueueEntry {
	return QueueEntry{
		Type:         t,
		RelativePath: relativePath,
		CreatedAt:    now.UnixMilli(),
	}
}

// Created returns CreatedAt as a time.
func (e QueueEntry) Created() time.Time {
	return time.UnixMilli(e.CreatedAt).UTC()
}
