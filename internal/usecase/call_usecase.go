package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/domain/input"
	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres/repository"
)

var ErrInvalidCallStatus = fmt.Errorf("invalid call status")

// CallUsecase ведёт записи о запланированных звонках. Сгенерированный
// session_id дальше живёт своей жизнью в сигналинге.
type CallUsecase interface {
	CreateCall(ctx context.Context, in *input.CreateCallInput) (*models.Call, error)
	GetCallsByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Call, error)
	UpdateCallStatus(ctx context.Context, id uuid.UUID, status models.CallStatus) (*models.Call, error)
}

type callUsecase struct {
	callRepo repository.CallRepository
	userRepo repository.UserRepository
}

func NewCallUsecase(callRepo repository.CallRepository, userRepo repository.UserRepository) CallUsecase {
	return &callUsecase{callRepo: callRepo, userRepo: userRepo}
}

func (uc *callUsecase) CreateCall(ctx context.Context, in *input.CreateCallInput) (*models.Call, error) {
	participants := make([]uuid.UUID, 0, len(in.Participants)+1)
	participants = append(participants, in.CreatedBy)

	// Участники могут быть заданы email-ом
	for _, p := range in.Participants {
		if id, err := uuid.Parse(p); err == nil {
			if id != in.CreatedBy {
				participants = append(participants, id)
			}
			continue
		}

		user, err := uc.userRepo.GetUserByEmail(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("resolve participant %q: %w", p, err)
		}

		if user.ID != in.CreatedBy {
			participants = append(participants, user.ID)
		}
	}

	if len(participants) < 2 {
		return nil, fmt.Errorf("call needs at least two participants")
	}

	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	call := models.NewCall(in.CreatedBy, in.Topic, scheduledAt, participants)

	if err := uc.callRepo.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	return call, nil
}

func (uc *callUsecase) GetCallsByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Call, error) {
	return uc.callRepo.GetByUserID(ctx, userID)
}

func (uc *callUsecase) UpdateCallStatus(ctx context.Context, id uuid.UUID, status models.CallStatus) (*models.Call, error) {
	if !status.Valid() {
		return nil, ErrInvalidCallStatus
	}

	if err := uc.callRepo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}

	return uc.callRepo.GetByID(ctx, id)
}
