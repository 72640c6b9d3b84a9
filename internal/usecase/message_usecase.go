package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres/repository"
)

// MessageUsecase - REST-путь к истории чата. Запись идёт в то же
// хранилище, что и chat-конверты по вебсокету.
type MessageUsecase interface {
	Append(ctx context.Context, sessionID string, senderID uuid.UUID, content string) (*models.Message, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
}

func NewMessageUsecase(messageRepo repository.MessageRepository, userRepo repository.UserRepository) MessageUsecase {
	return &messageUsecase{messageRepo: messageRepo, userRepo: userRepo}
}

func (uc *messageUsecase) Append(ctx context.Context, sessionID string, senderID uuid.UUID, content string) (*models.Message, error) {
	user, err := uc.userRepo.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("get sender from postgres: %w", err)
	}

	msg := models.NewMessage(sessionID, senderID, user.Name, content)

	if err = uc.messageRepo.Append(ctx, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

func (uc *messageUsecase) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	return uc.messageRepo.ListBySession(ctx, sessionID)
}
