package apperrors

import (
	"encoding/json"
	"net/http"

	"github.com/pysugar/outlook-relay/internal/logging"
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Write renders err as JSON. Non-AppErrors become a generic 500 so internals
// never leak to clients.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logging.GetRequestID(r.Context())
	reqLog := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	response := ErrorResponse{
		Error:     ErrCodeUnexpectedError,
		Message:   "An unexpected error occurred",
		RequestID: requestID,
	}

	if appErr, ok := AsAppError(err); ok {
		status = appErr.HTTPStatus
		response.Error = appErr.Code
		response.Message = appErr.Message
		response.Detail = appErr.Detail
		if status >= 500 {
			reqLog.Error("Internal error", appErr.Err,
				logging.String("error_code", appErr.Code),
				logging.String("message", appErr.Message),
			)
		} else {
			reqLog.Warn("Client error",
				logging.String("error_code", appErr.Code),
				logging.String("message", appErr.Message),
			)
		}
	} else {
		reqLog.Error("Unhandled error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		json.NewEncoder(w).Encode(response)
	}
}
