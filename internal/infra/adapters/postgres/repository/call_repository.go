package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/venturelink/pitchcall/internal/domain/models"
)

type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Call, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Call, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CallStatus) error
}

type callRepo struct {
	db *sqlx.DB
}

func NewCallRepo(db *sqlx.DB) CallRepository {
	return &callRepo{db: db}
}

func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO calls (id, session_id, topic, status, created_by, scheduled_at) VALUES ($1, $2, $3, $4, $5, $6)",
		call.ID,
		call.SessionID,
		call.Topic,
		call.Status,
		call.CreatedBy,
		call.ScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}

	for _, userID := range call.Participants {
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO call_participants (call_id, user_id) VALUES ($1, $2)",
			call.ID,
			userID,
		)
		if err != nil {
			return fmt.Errorf("insert call participant: %w", err)
		}
	}

	return tx.Commit()
}

func (r *callRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Call, error) {
	var call models.Call

	err := r.db.GetContext(
		ctx,
		&call,
		"SELECT id, session_id, topic, status, created_by, scheduled_at, created_at FROM calls WHERE id = $1",
		id,
	)
	if err != nil {
		return nil, err
	}

	if err = r.loadParticipants(ctx, &call); err != nil {
		return nil, err
	}

	return &call, nil
}

func (r *callRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Call, error) {
	var calls []*models.Call

	query := `
		SELECT c.id, c.session_id, c.topic, c.status, c.created_by, c.scheduled_at, c.created_at
		FROM calls c
		INNER JOIN call_participants cp ON c.id = cp.call_id
		WHERE cp.user_id = $1
		ORDER BY c.scheduled_at ASC
	`

	err := r.db.SelectContext(ctx, &calls, query, userID)
	if err != nil {
		return nil, err
	}

	for _, call := range calls {
		if err = r.loadParticipants(ctx, call); err != nil {
			return nil, err
		}
	}

	return calls, nil
}

func (r *callRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CallStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE calls SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}

	if aff, err := res.RowsAffected(); aff == 0 || err != nil {
		return fmt.Errorf("update call status no rows affected: %w", err)
	}

	return nil
}

func (r *callRepo) loadParticipants(ctx context.Context, call *models.Call) error {
	err := r.db.SelectContext(
		ctx,
		&call.Participants,
		"SELECT user_id FROM call_participants WHERE call_id = $1",
		call.ID,
	)
	if err != nil {
		return fmt.Errorf("load call participants: %w", err)
	}

	return nil
}
