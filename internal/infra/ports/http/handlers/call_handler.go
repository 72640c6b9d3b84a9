package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/domain/input"
	"github.com/venturelink/pitchcall/internal/domain/models"
	"github.com/venturelink/pitchcall/internal/infra/appctx"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/dto"
	"github.com/venturelink/pitchcall/internal/usecase"
)

type CallHandler struct {
	callUsecase usecase.CallUsecase
}

func NewCallHandler(callUsecase usecase.CallUsecase) *CallHandler {
	return &CallHandler{callUsecase: callUsecase}
}

func (h *CallHandler) CreateCallHandler(c echo.Context) error {
	var req dto.CreateCallRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.Topic == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "topic is required"})
	}

	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	createCallInput := &input.CreateCallInput{
		CreatedBy:    userID,
		Topic:        req.Topic,
		ScheduledAt:  req.ScheduledAt,
		Participants: req.Participants,
	}

	call, err := h.callUsecase.CreateCall(c.Request().Context(), createCallInput)
	if err != nil {
		slog.Error("create call", slog.Any(constant.Error, err))

		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid participants, ensure all users exist"})
	}

	return c.JSON(http.StatusCreated, dto.NewCallResponseFromModel(call))
}

func (h *CallHandler) ListCallsHandler(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user"})
	}

	calls, err := h.callUsecase.GetCallsByUserID(c.Request().Context(), userID)
	if err != nil {
		slog.Error("get calls by user id", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get calls"})
	}

	resp := dto.ListCallsResponse{Calls: make([]dto.CallResponse, 0, len(calls))}
	for _, call := range calls {
		resp.Calls = append(resp.Calls, dto.NewCallResponseFromModel(call))
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *CallHandler) UpdateCallStatusHandler(c echo.Context) error {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid call id"})
	}

	var req dto.UpdateCallStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	call, err := h.callUsecase.UpdateCallStatus(c.Request().Context(), callID, models.CallStatus(req.Status))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCallStatus) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		slog.Error("update call status", slog.Any(constant.Error, err), slog.Any(constant.CallID, callID))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update call"})
	}

	return c.JSON(http.StatusOK, dto.NewCallResponseFromModel(call))
}
