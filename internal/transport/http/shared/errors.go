package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"absence/internal/domain/leave"
	"absence/internal/domain/workflow"
	"absence/internal/transport/http/api"
)

// FailError maps domain errors onto HTTP responses. Unknown errors are logged and hidden.
func FailError(w http.ResponseWriter, err error, requestID string) {
	var nf *workflow.NotFoundError
	switch {
	case errors.As(err, &nf):
		api.FailWithDetails(w, http.StatusNotFound, "not_found", err.Error(),
			map[string]any{"entity": nf.Entity, "id": nf.ID}, requestID)
	case errors.Is(err, workflow.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, workflow.ErrInvalidRequestType), errors.Is(err, leave.ErrInvalidInput):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to act on this request", requestID)
	case errors.Is(err, leave.ErrSelfApproval):
		api.Fail(w, http.StatusForbidden, "self_approval", err.Error(), requestID)
	case errors.Is(err, leave.ErrStepConflict):
		api.Fail(w, http.StatusConflict, "step_conflict", err.Error(), requestID)
	case errors.Is(err, leave.ErrInvalidState), errors.Is(err, leave.ErrNotActionable):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	default:
		slog.Error("request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal error", requestID)
	}
}
