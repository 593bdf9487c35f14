package models

import "time"

type File struct {
	ID           string    `db:"file_id"`
	SessionID    string    `db:"session_id"`
	Category     Category  `db:"category"`
	OriginalName string    `db:"original_name"`
	SizeBytes    int64     `db:"file_size"`
	MimeType     string    `db:"mime_type"`
	UploadedAt   time.Time `db:"uploaded_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the intake conversation.
type Message struct {
	SessionID string    `db:"session_id"`
	Role      Role      `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}
