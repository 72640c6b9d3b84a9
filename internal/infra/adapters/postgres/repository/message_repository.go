package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/venturelink/pitchcall/internal/domain/models"
)

type MessageRepository interface {
	// Append сохраняет сообщение до рассылки по сессии
	Append(ctx context.Context, msg *models.Message) error

	// ListBySession возвращает историю сессии от старых к новым
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Append(ctx context.Context, msg *models.Message) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO messages (id, session_id, sender_id, sender_name, content) VALUES ($1, $2, $3, $4, $5)",
		msg.ID,
		msg.SessionID,
		msg.SenderID,
		msg.SenderName,
		msg.Content,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	var messages []*models.Message

	query := `
		SELECT id, session_id, sender_id, sender_name, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, sessionID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}
