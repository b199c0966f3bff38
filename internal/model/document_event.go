package model

import "time"

const (
	EventDocumentUploaded = "document.uploaded"
	EventTurnRecorded     = "chat.turn_recorded"
)

// DocumentEvent is the wire payload published after a committed write and the
// audit row the event worker stores for it.
type DocumentEvent struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	EventID    string    `gorm:"size:36;not null;uniqueIndex" json:"eventId"`
	Type       string    `gorm:"size:32;not null;index" json:"type"`
	DocumentID string    `gorm:"size:36;not null;index" json:"documentId"`
	UserID     string    `gorm:"size:64" json:"userId"`
	OccurredAt time.Time `gorm:"not null" json:"occurredAt"`
	CreatedAt  time.Time `json:"-"`
}
