package model

import "time"

type Document struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	Title         string        `gorm:"size:255;not null" json:"title"`
	ExtractedText string        `gorm:"type:longtext" json:"extractedText"`
	FileURL       string        `gorm:"size:512;not null;default:''" json:"fileUrl"`
	UserID        string        `gorm:"size:64;not null;index:idx_documents_user_created,priority:1" json:"userId"`
	User          *User         `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Interactions  []Interaction `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"interactions"`
	CreatedAt     time.Time     `gorm:"index:idx_documents_user_created,priority:2" json:"createdAt"`
}

// DocumentSummary is the list projection; it never carries the extracted text.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	FileURL   string    `json:"fileUrl"`
}
