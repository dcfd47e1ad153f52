package models

import "time"

// ChatExchange is one user message and the model's response for it.
// A row is created with an empty response when a stream starts and
// finalized exactly once; afterwards it is read-only.
type ChatExchange struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     int64     `gorm:"column:owner_id;index:idx_chats_owner_session" json:"owner_id"`
	SessionID   int64     `gorm:"column:session_id;index:idx_chats_owner_session" json:"session_id"`
	Message     string    `gorm:"type:text" json:"message"`
	Response    string    `gorm:"type:text" json:"response"`
	Attachments string    `gorm:"type:text" json:"attachments,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table name the frontend-facing API has always used.
func (ChatExchange) TableName() string { return "chats" }

// Attachment describes one uploaded file that accompanied a message.
// Extraction happens upstream; only the extracted text reaches this system.
type Attachment struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	URL           string `json:"url"`
	Size          int64  `json:"size"`
	ExtractedText string `json:"extracted_text,omitempty"`
}
