package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/application/metric"
	"github.com/venturelink/pitchcall/internal/domain/events"
	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/infra/adapters/memory"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres/repository"
)

// SignalingUsecase реализует протокол координации звонка поверх
// реестра соединений. Доставка всегда best-effort: если адресата нет
// в реестре, конверт молча отбрасывается и отправителю ничего не
// возвращается.
type SignalingUsecase interface {
	HandleConnect(ctx context.Context, userID uuid.UUID, conn memory.Conn)
	HandleDisconnect(ctx context.Context, userID uuid.UUID, conn memory.Conn)

	HandleJoin(ctx context.Context, userID uuid.UUID, conn memory.Conn, ev events.JoinEvent) error
	HandleLeave(ctx context.Context, userID uuid.UUID, conn memory.Conn, ev events.LeaveEvent) error

	HandleInvite(ctx context.Context, userID uuid.UUID, ev events.InviteEvent) error
	HandleAccept(ctx context.Context, userID uuid.UUID, ev events.AcceptEvent) error
	HandleReject(ctx context.Context, userID uuid.UUID, ev events.RejectEvent) error

	// HandleSignal пересылает конверт переговоров (offer, answer,
	// candidate или любой неизвестный тип с session_id) остальным
	// участникам сессии, не заглядывая в payload
	HandleSignal(ctx context.Context, conn memory.Conn, msg events.Message) error

	HandleChat(ctx context.Context, userID uuid.UUID, ev events.ChatEvent) error

	// NotifyMessage рассылает уже сохранённое сообщение по сессии,
	// включая отправителя
	NotifyMessage(ctx context.Context, msg *models.Message)

	HandlePing(ctx context.Context, userID uuid.UUID, conn memory.Conn)
}

type signalingUsecase struct {
	registry memory.ConnectionRegistry

	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
}

func NewSignalingUsecase(
	registry memory.ConnectionRegistry,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
) SignalingUsecase {
	return &signalingUsecase{
		registry:    registry,
		userRepo:    userRepo,
		messageRepo: messageRepo,
	}
}

// HandleConnect регистрирует соединение под идентификатором
// участника. Идентификатору верим: он получен из JWT транспортного
// уровня, повторная проверка здесь не делается.
func (s *signalingUsecase) HandleConnect(ctx context.Context, userID uuid.UUID, conn memory.Conn) {
	s.registry.Register(userID, conn)
}

// HandleDisconnect снимает привязки соединения. Пиры в сессии НЕ
// уведомляются: молчаливый обрыв не отличим от сети, peer_left
// посылается только на явный leave.
func (s *signalingUsecase) HandleDisconnect(ctx context.Context, userID uuid.UUID, conn memory.Conn) {
	s.registry.Unregister(userID, conn)
}

func (s *signalingUsecase) HandleJoin(ctx context.Context, userID uuid.UUID, conn memory.Conn, ev events.JoinEvent) error {
	if ev.SessionID == "" {
		s.writeError(userID, "session_id is required")
		return nil
	}

	s.registry.JoinSession(ev.SessionID, userID, conn)

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user from postgres: %w", err)
	}

	// Анонс без подтверждения: кто был в сессии, тот узнал
	s.deliverToSession(
		ev.SessionID,
		events.TypePeerJoined,
		events.PeerEvent{SessionID: ev.SessionID, UserID: userID, UserName: user.Name},
		conn,
	)

	return nil
}

func (s *signalingUsecase) HandleLeave(ctx context.Context, userID uuid.UUID, conn memory.Conn, ev events.LeaveEvent) error {
	if ev.SessionID == "" {
		return nil
	}

	s.registry.LeaveSession(ev.SessionID, conn)

	s.deliverToSession(
		ev.SessionID,
		events.TypePeerLeft,
		events.PeerEvent{SessionID: ev.SessionID, UserID: userID},
		conn,
	)

	return nil
}

func (s *signalingUsecase) HandleInvite(ctx context.Context, userID uuid.UUID, ev events.InviteEvent) error {
	if ev.SessionID == "" || ev.ToUserID == uuid.Nil {
		s.writeError(userID, "invite needs session_id and to_user_id")
		return nil
	}

	caller := ev.Caller
	if caller.Name == "" {
		user, err := s.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("get caller from postgres: %w", err)
		}
		caller = events.CallerInfo{ID: user.ID, Name: user.Name, Avatar: user.Avatar}
	}
	caller.ID = userID

	s.deliverToParticipant(
		ev.ToUserID,
		events.TypeIncomingCall,
		events.IncomingCallEvent{SessionID: ev.SessionID, Caller: caller},
	)

	return nil
}

func (s *signalingUsecase) HandleAccept(ctx context.Context, userID uuid.UUID, ev events.AcceptEvent) error {
	s.deliverToParticipant(
		ev.ToUserID,
		events.TypeCallAccepted,
		events.CallAcceptedEvent{SessionID: ev.SessionID, AccepterID: userID},
	)

	return nil
}

func (s *signalingUsecase) HandleReject(ctx context.Context, userID uuid.UUID, ev events.RejectEvent) error {
	s.deliverToParticipant(
		ev.ToUserID,
		events.TypeCallRejected,
		events.RejectEvent{ToUserID: ev.ToUserID, SessionID: ev.SessionID},
	)

	return nil
}

func (s *signalingUsecase) HandleSignal(ctx context.Context, conn memory.Conn, msg events.Message) error {
	var target events.SessionTarget

	if err := json.Unmarshal(msg.Data, &target); err != nil {
		return fmt.Errorf("unmarshal signal target: %w", err)
	}

	if target.SessionID == "" {
		return fmt.Errorf("signal %q without session_id", msg.Type)
	}

	// Конверт уходит как есть, без валидации payload
	delivered := s.registry.DeliverToSession(target.SessionID, msg, conn)
	s.record(msg.Type, delivered)

	return nil
}

func (s *signalingUsecase) HandleChat(ctx context.Context, userID uuid.UUID, ev events.ChatEvent) error {
	if ev.SessionID == "" || ev.Content == "" {
		s.writeError(userID, "chat needs session_id and content")
		return nil
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get sender from postgres: %w", err)
	}

	msg := models.NewMessage(ev.SessionID, userID, user.Name, ev.Content)

	// Сначала хранилище, потом рассылка
	if err = s.messageRepo.Append(ctx, msg); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}

	s.NotifyMessage(ctx, msg)

	return nil
}

func (s *signalingUsecase) NotifyMessage(ctx context.Context, msg *models.Message) {
	// Отправитель тоже получает рассылку - клиент дедуплицирует по id
	s.deliverToSession(msg.SessionID, events.TypeMessage, msg, nil)
}

func (s *signalingUsecase) HandlePing(ctx context.Context, userID uuid.UUID, conn memory.Conn) {
	if err := conn.WriteJSON(events.Message{Type: events.TypePong}); err != nil {
		slog.Error("write pong", slog.Any(constant.Error, err), slog.Any(constant.UserID, userID))
	}
}

func (s *signalingUsecase) deliverToParticipant(userID uuid.UUID, msgType string, payload any) {
	msg, err := events.NewMessage(msgType, payload)
	if err != nil {
		slog.Error("marshal envelope", slog.Any(constant.Error, err), slog.String(constant.EnvType, msgType))
		return
	}

	delivered := s.registry.DeliverToParticipant(userID, msg)
	s.record(msgType, delivered)
}

func (s *signalingUsecase) deliverToSession(sessionID, msgType string, payload any, exclude memory.Conn) {
	msg, err := events.NewMessage(msgType, payload)
	if err != nil {
		slog.Error("marshal envelope", slog.Any(constant.Error, err), slog.String(constant.EnvType, msgType))
		return
	}

	delivered := s.registry.DeliverToSession(sessionID, msg, exclude)
	s.record(msgType, delivered)
}

func (s *signalingUsecase) record(msgType string, delivered int) {
	if delivered == 0 {
		metric.EnvelopeDropped(msgType)
		return
	}

	metric.EnvelopeDelivered(msgType)
}

func (s *signalingUsecase) writeError(userID uuid.UUID, text string) {
	msg, err := events.NewMessage(events.TypeError, events.ErrorEvent{Message: text})
	if err != nil {
		return
	}

	s.registry.DeliverToParticipant(userID, msg)
}
