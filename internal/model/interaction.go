package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Interaction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"documentId"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	Content    string    `gorm:"type:mediumtext;not null" json:"content"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
