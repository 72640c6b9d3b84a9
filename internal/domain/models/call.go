package models

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type CallStatus string

const (
	CallStatusScheduled CallStatus = "scheduled"
	CallStatusCompleted CallStatus = "completed"
	CallStatusCancelled CallStatus = "cancelled"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusScheduled, CallStatusCompleted, CallStatusCancelled:
		return true
	}
	return false
}

// Call - запись о запланированном звонке. Релей не владеет этой
// записью, он потребляет только session_id.
type Call struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SessionID   string     `json:"session_id" db:"session_id"`
	Topic       string     `json:"topic" db:"topic"`
	Status      CallStatus `json:"status" db:"status"`
	CreatedBy   uuid.UUID  `json:"created_by" db:"created_by"`
	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	Participants []uuid.UUID `json:"participants" db:"-"`
}

func NewCall(createdBy uuid.UUID, topic string, scheduledAt time.Time, participants []uuid.UUID) *Call {
	return &Call{
		ID:           uuid.New(),
		SessionID:    NewSessionID(),
		Topic:        topic,
		Status:       CallStatusScheduled,
		CreatedBy:    createdBy,
		ScheduledAt:  scheduledAt,
		CreatedAt:    time.Now(),
		Participants: participants,
	}
}

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID генерирует короткий ключ комнаты в base36
func NewSessionID() string {
	b := make([]byte, 8)
	max := big.NewInt(int64(len(sessionIDAlphabet)))

	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand не должен падать; fallback на uuid
			return uuid.NewString()[:8]
		}
		b[i] = sessionIDAlphabet[n.Int64()]
	}

	return string(b)
}
