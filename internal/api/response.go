package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/state"
)

// ErrorCode — машинный код ошибки в теле ответа.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeFormat        ErrorCode = "FORMAT_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
)

// ErrorResponse — тело ответа с ошибкой: {"error": {...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — описание ошибки. Step и Field заполняются для
// VALIDATION_ERROR.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
	Field   string    `json:"field,omitempty"`
}

// DataResponse — тело успешного ответа: {"data": ...}.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — список с общим числом элементов.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// JSON пишет v с указанным статусом.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success — 200 с {"data": data}.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// List — 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	JSON(w, status, ErrorResponse{Error: detail})
}

// Error пишет ошибку без указания места.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeError(w, status, ErrorDetail{Code: code, Message: message})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, ErrCodeConflict, message)
}

// InvalidState — 422: операция невозможна в текущем статусе run.
func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

// Unavailable — 503: нужная зависимость (очередь, движок) недоступна.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError логирует err и отдаёт клиенту 500 без подробностей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleRepoError пишет ответ для ошибки хранилища. Возвращает false,
// если err == nil и обработчик должен продолжить.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, notFoundMsg)
	case errors.Is(err, repo.ErrInvalidName):
		BadRequest(w, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}

// HandleRecipeError пишет ответ для ошибки загрузки рецепта:
// FormatError даёт 400 FORMAT_ERROR, ValidationError даёт 422
// VALIDATION_ERROR с шагом и полем, несериализуемые начальные значения
// дают 400. Для прочих ошибок возвращает false.
func HandleRecipeError(w http.ResponseWriter, err error) bool {
	var (
		formatErr     *engine.FormatError
		validationErr *engine.ValidationError
	)
	switch {
	case errors.As(err, &formatErr):
		Error(w, http.StatusBadRequest, ErrCodeFormat, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, ErrorDetail{
			Code:    ErrCodeValidation,
			Message: err.Error(),
			Step:    validationErr.Step,
			Field:   validationErr.Field,
		})
	case state.IsSerializationError(err):
		BadRequest(w, err.Error())
	default:
		return false
	}
	return true
}
