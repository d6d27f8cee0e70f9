package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/convention-registry/member-api/internal/app/people"
)

type errorResponse struct {
	Status    string         `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{
		Status:    "error",
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeAppError maps an application error onto its HTTP status. Anything else is an
// opaque 500.
func writeAppError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var ae *people.Error
	if errors.As(err, &ae) {
		if ae.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("code", ae.Code),
				zap.Error(err),
			)
		}
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	log.Error("request failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
