package models

import (
	"time"

	"github.com/google/uuid"
)

// Message - сообщение чата. Сначала сохраняется в БД, потом
// рассылается по сессии: источником истины является хранилище.
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	SenderID   uuid.UUID `json:"sender_id" db:"sender_id"`
	SenderName string    `json:"sender_name" db:"sender_name"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func NewMessage(sessionID string, senderID uuid.UUID, senderName, content string) *Message {
	return &Message{
		ID:         uuid.New(),
		SessionID:  sessionID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}
