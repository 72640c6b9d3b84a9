package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/venturelink/pitchcall/internal/application/config"
	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/domain/events"
	"github.com/venturelink/pitchcall/internal/infra/appctx"
	"github.com/venturelink/pitchcall/internal/usecase"
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	signalingUsecase usecase.SignalingUsecase
}

func NewWebSocketHandler(cfg *config.Config, signalingUsecase usecase.SignalingUsecase) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		signalingUsecase: signalingUsecase,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return fmt.Errorf("get user id from context")
	}

	// Регистрация: идентификатор участника берём из JWT, сам клиент
	// ничего не объявляет
	h.signalingUsecase.HandleConnect(c.Request().Context(), userID, ws)
	defer h.signalingUsecase.HandleDisconnect(c.Request().Context(), userID, ws)

	if err = ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	// Обработка строго последовательная на соединение: конверты
	// одного отправителя уходят в том порядке, в котором пришли
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		default:
			_, raw, err := ws.ReadMessage()
			if err != nil {
				h.handleWebsocketError(c.Request().Context(), err)
				return nil
			}

			var msg events.Message
			if err = json.Unmarshal(raw, &msg); err != nil {
				slog.Error("unmarshal websocket message", slog.Any(constant.Error, err))
				continue
			}

			if err = h.handleMessage(c.Request().Context(), userID, ws, msg); err != nil {
				slog.Error(
					"handle message",
					slog.Any(constant.Error, err),
					slog.String(constant.EnvType, msg.Type),
					slog.Any(constant.UserID, userID),
				)
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	userID uuid.UUID,
	ws *websocket.Conn,
	msg events.Message,
) error {
	switch msg.Type {
	case events.TypeJoin:
		var joinEvent events.JoinEvent

		if err := json.Unmarshal(msg.Data, &joinEvent); err != nil {
			return fmt.Errorf("unmarshal join event: %w", err)
		}

		if err := h.signalingUsecase.HandleJoin(ctx, userID, ws, joinEvent); err != nil {
			return fmt.Errorf("handle join: %w", err)
		}

	case events.TypeInvite:
		var inviteEvent events.InviteEvent

		if err := json.Unmarshal(msg.Data, &inviteEvent); err != nil {
			return fmt.Errorf("unmarshal invite event: %w", err)
		}

		if err := h.signalingUsecase.HandleInvite(ctx, userID, inviteEvent); err != nil {
			return fmt.Errorf("handle invite: %w", err)
		}

	case events.TypeAccept:
		var acceptEvent events.AcceptEvent

		if err := json.Unmarshal(msg.Data, &acceptEvent); err != nil {
			return fmt.Errorf("unmarshal accept event: %w", err)
		}

		if err := h.signalingUsecase.HandleAccept(ctx, userID, acceptEvent); err != nil {
			return fmt.Errorf("handle accept: %w", err)
		}

	case events.TypeReject:
		var rejectEvent events.RejectEvent

		if err := json.Unmarshal(msg.Data, &rejectEvent); err != nil {
			return fmt.Errorf("unmarshal reject event: %w", err)
		}

		if err := h.signalingUsecase.HandleReject(ctx, userID, rejectEvent); err != nil {
			return fmt.Errorf("handle reject: %w", err)
		}

	case events.TypeLeave:
		var leaveEvent events.LeaveEvent

		if err := json.Unmarshal(msg.Data, &leaveEvent); err != nil {
			return fmt.Errorf("unmarshal leave event: %w", err)
		}

		if err := h.signalingUsecase.HandleLeave(ctx, userID, ws, leaveEvent); err != nil {
			return fmt.Errorf("handle leave: %w", err)
		}

	case events.TypeChat:
		var chatEvent events.ChatEvent

		if err := json.Unmarshal(msg.Data, &chatEvent); err != nil {
			return fmt.Errorf("unmarshal chat event: %w", err)
		}

		if err := h.signalingUsecase.HandleChat(ctx, userID, chatEvent); err != nil {
			return fmt.Errorf("handle chat: %w", err)
		}

	case events.TypePing:
		h.signalingUsecase.HandlePing(ctx, userID, ws)

	default:
		// offer, answer, candidate и любые незнакомые типы: релей
		// протокол-агностичен и пересылает конверт по адресу как есть
		if err := h.signalingUsecase.HandleSignal(ctx, ws, msg); err != nil {
			return fmt.Errorf("handle signal: %w", err)
		}
	}

	return nil
}

func (h *WebSocketHandler) handleWebsocketError(ctx context.Context, err error) {
	userID, ok := appctx.UserID(ctx)
	if !ok {
		userID = uuid.Nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("user disconnected from websocket", slog.Any(constant.UserID, userID))
		default:
			slog.Error("websocket close error", slog.Any(constant.Error, err))
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.Error, err),
		)
	}
}
