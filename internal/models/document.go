package models

import (
	"time"
)

// Document is one merge-upserted record addressed by its full path.
type Document struct {
	Path       string    `gorm:"primaryKey;type:varchar(512)" json:"path"`  // collection/key or nested path
	Collection string    `gorm:"index;type:varchar(255)" json:"collection"` // parent collection path
	DocKey     string    `gorm:"index;type:varchar(255)" json:"doc_key"`    // last path segment
	Data       JSON      `gorm:"type:json" json:"data"`                     // document body
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                   // first write
	UpdatedAt  time.Time `gorm:"index" json:"updated_at"`                   // last write
}

// TableName table name
func (Document) TableName() string {
	return "documents"
}
