package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/infra/appctx"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/dto"
	"github.com/venturelink/pitchcall/internal/usecase"
)

type MessageHandler struct {
	messageUsecase   usecase.MessageUsecase
	signalingUsecase usecase.SignalingUsecase
}

func NewMessageHandler(messageUsecase usecase.MessageUsecase, signalingUsecase usecase.SignalingUsecase) *MessageHandler {
	return &MessageHandler{
		messageUsecase:   messageUsecase,
		signalingUsecase: signalingUsecase,
	}
}

// ListMessagesHandler отдаёт историю сессии от старых к новым,
// вызывается один раз при открытии окна звонка
func (h *MessageHandler) ListMessagesHandler(c echo.Context) error {
	sessionID := c.Param("sessionID")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session id is required"})
	}

	messages, err := h.messageUsecase.ListBySession(c.Request().Context(), sessionID)
	if err != nil {
		slog.Error("list messages", slog.Any(constant.Error, err), slog.String(constant.SessionID, sessionID))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get messages"})
	}

	resp := make([]dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, dto.NewMessageResponseFromModel(msg))
	}

	return c.JSON(http.StatusOK, resp)
}

// PostMessageHandler сохраняет сообщение и рассылает его по сессии
func (h *MessageHandler) PostMessageHandler(c echo.Context) error {
	var req dto.PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.SessionID == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id and content are required"})
	}

	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	msg, err := h.messageUsecase.Append(c.Request().Context(), req.SessionID, userID, req.Content)
	if err != nil {
		slog.Error("append message", slog.Any(constant.Error, err), slog.String(constant.SessionID, req.SessionID))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save message"})
	}

	h.signalingUsecase.NotifyMessage(c.Request().Context(), msg)

	return c.JSON(http.StatusCreated, dto.NewMessageResponseFromModel(msg))
}
