package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is a small fluent builder for JSON responses so every handler
// formats errors and headers the same way.
type Response struct {
	statusCode int
	headers    map[string]string
	payload    any
}

func NewResponse() *Response {
	return &Response{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *Response) Status(code int) *Response {
	b.statusCode = code
	return b
}

func (b *Response) Header(name, value string) *Response {
	b.headers[name] = value
	return b
}

// JSON sets the response payload.
func (b *Response) JSON(payload any) *Response {
	b.payload = payload
	return b
}

// Write sends the built response.
func (b *Response) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)

	if b.payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse builds a JSON error envelope.
func ErrorResponse(statusCode int, message string) *Response {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *Response {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *Response {
	return ErrorResponse(http.StatusNotFound, message)
}

func ServiceUnavailableError(message string) *Response {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

func InternalServerError(message string) *Response {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func MethodNotAllowedError(allowedMethods string) *Response {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}
