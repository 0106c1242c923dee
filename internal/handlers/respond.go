package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"push-relay/pkg/errors"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the service taxonomy. Unknown errors become
// opaque 500s; wrapped causes stay in the logs only.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	svcErr := errors.ErrInternalServer
	var se *errors.ServiceError
	if stderrors.As(err, &se) {
		svcErr = se
	}
	if svcErr.Status >= 500 {
		logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, svcErr.Status, errorResponse{Error: svcErr.Code, Description: svcErr.Message})
}
