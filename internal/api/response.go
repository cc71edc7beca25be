package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Kronos/internal/dateexpr"
	"github.com/shaiso/Kronos/internal/jobs"
	"github.com/shaiso/Kronos/internal/queue"
	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/scheduler"
	"github.com/shaiso/Kronos/internal/store"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	ErrCodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeUnavailable       ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Token   string    `json:"token,omitempty"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// NoContent отправляет ответ без тела (204).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, detail ErrorDetail) {
	JSON(w, status, ErrorResponse{Error: detail})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrorDetail{Code: ErrCodeBadRequest, Message: message})
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrorDetail{Code: ErrCodeNotFound, Message: message})
}

// Unavailable отправляет ошибку 503.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrorDetail{Code: ErrCodeUnavailable, Message: message})
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrorDetail{Code: ErrCodeInternalError, Message: "internal server error"})
}

// HandleError преобразует ошибку домена в HTTP ответ.
// Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	var ve *jobs.ValidationError
	var pe *dateexpr.ParseError
	var se *store.StoreError

	switch {
	case errors.As(err, &ve):
		Error(w, http.StatusBadRequest, ErrorDetail{
			Code:    ErrCodeInvalidDefinition,
			Message: ve.Error(),
			Field:   ve.Field,
		})
	case errors.As(err, &pe):
		Error(w, http.StatusBadRequest, ErrorDetail{
			Code:    ErrCodeInvalidExpression,
			Message: pe.Error(),
			Token:   pe.Token,
		})
	case errors.Is(err, repo.ErrInvalidFilter):
		BadRequest(w, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		NotFound(w, notFoundMsg)
	case errors.As(err, &se):
		logger.Warn("schedule store unavailable", "error", err)
		Unavailable(w, "schedule store unavailable")
	case errors.Is(err, scheduler.ErrNoQueue), errors.Is(err, scheduler.ErrNoStore), errors.Is(err, queue.ErrNoRepo):
		Unavailable(w, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}
