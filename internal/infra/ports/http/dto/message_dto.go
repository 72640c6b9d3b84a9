package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/domain/models"
)

type PostMessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type MessageResponse struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewMessageResponseFromModel(msg *models.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
}
