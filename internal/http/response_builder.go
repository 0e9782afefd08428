package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kbju/internal/core"
	applog "kbju/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// errorBody is the payload of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A 204 or a nil body writes no payload.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

var validationErrors = []error{
	core.ErrEmptyName,
	core.ErrNameTooLong,
	core.ErrInvalidMacro,
	core.ErrInvalidGrams,
	core.ErrInvalidDate,
	core.ErrInvalidRange,
	core.ErrInvalidQuantity,
}

// errorResponse maps a diary error to its HTTP response. Only unexpected
// errors are logged; their text never reaches the client.
func errorResponse(ctx context.Context, err error, op string) *JSONResponseBuilder {
	switch {
	case errors.Is(err, errMalformedBody):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrDuplicateName):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrDishNotFound), errors.Is(err, core.ErrEntryNotFound):
		return NotFoundError(err.Error())
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return UnprocessableEntityError(err.Error())
		}
	}

	applog.FromContext(ctx).LogError(ctx, "Request failed", err, op,
		applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
	return InternalServerError()
}
