package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

// apiError is a structured error returned to clients.
type apiError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *apiError) Error() string {
	return e.Message
}

func badRequest(message string) *apiError {
	return &apiError{StatusCode: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func notFound(message string) *apiError {
	return &apiError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func conflict(message string) *apiError {
	return &apiError{StatusCode: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func internalError() *apiError {
	return &apiError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"}
}

func writeJSON(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func accepted(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: data})
}

func created(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: data})
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func fail(w http.ResponseWriter, err *apiError) {
	writeJSON(w, err.StatusCode, envelope{Success: false, Error: err})
}
