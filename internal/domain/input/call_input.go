package input

import (
	"time"

	"github.com/google/uuid"
)

type CreateCallInput struct {
	CreatedBy   uuid.UUID
	Topic       string
	ScheduledAt time.Time

	// Participants - uuid или email
	Participants []string
}
