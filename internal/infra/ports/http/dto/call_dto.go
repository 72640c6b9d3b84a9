package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/domain/models"
)

type CreateCallRequest struct {
	Topic       string    `json:"topic"`
	ScheduledAt time.Time `json:"scheduled_at"`

	// Participants - uuid или email приглашённых
	Participants []string `json:"participants"`
}

type UpdateCallStatusRequest struct {
	Status string `json:"status"`
}

type CallResponse struct {
	ID           uuid.UUID   `json:"id"`
	SessionID    string      `json:"session_id"`
	Topic        string      `json:"topic"`
	Status       string      `json:"status"`
	CreatedBy    uuid.UUID   `json:"created_by"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	CreatedAt    time.Time   `json:"created_at"`
	Participants []uuid.UUID `json:"participants"`
}

func NewCallResponseFromModel(call *models.Call) CallResponse {
	return CallResponse{
		ID:           call.ID,
		SessionID:    call.SessionID,
		Topic:        call.Topic,
		Status:       string(call.Status),
		CreatedBy:    call.CreatedBy,
		ScheduledAt:  call.ScheduledAt,
		CreatedAt:    call.CreatedAt,
		Participants: call.Participants,
	}
}

type ListCallsResponse struct {
	Calls []CallResponse `json:"calls"`
}
