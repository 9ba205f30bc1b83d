package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Status is derived from the error's sentinel, message via core.MapError
//  4. Technical error is logged with the request id for correlation
//  5. Client receives ErrorResponse as JSON

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/ingestpipe/internal/core"
	"github.com/JonMunkholm/ingestpipe/internal/journal"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	// Run carries the partial result of a run that started and then failed.
	Run *core.RunResult `json:"run,omitempty"`
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownDataset), errors.Is(err, journal.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error and writes the mapped message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondRunError(w, r, err, nil)
}

func (s *Server) respondRunError(w http.ResponseWriter, r *http.Request, err error, run *core.RunResult) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Run:     run,
	})
}
