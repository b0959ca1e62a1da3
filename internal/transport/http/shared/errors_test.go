package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"absence/internal/domain/leave"
	"absence/internal/domain/workflow"
	"absence/internal/transport/http/api"
)

func TestFailErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{workflow.NewNotFoundError("leave type", "lt-x"), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: bad dates", leave.ErrInvalidInput), http.StatusBadRequest, "invalid_request"},
		{workflow.ErrInvalidRequestType, http.StatusBadRequest, "invalid_request"},
		{leave.ErrForbidden, http.StatusForbidden, "forbidden"},
		{leave.ErrSelfApproval, http.StatusForbidden, "self_approval"},
		{leave.ErrStepConflict, http.StatusConflict, "step_conflict"},
		{leave.ErrNotActionable, http.StatusConflict, "invalid_state"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		FailError(rec, tc.err, "req-1")
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var env api.Envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Success || env.Error == nil || env.Error.Code != tc.code || env.RequestID != "req-1" {
			t.Fatalf("%v: unexpected envelope %+v", tc.err, env)
		}
	}
}
