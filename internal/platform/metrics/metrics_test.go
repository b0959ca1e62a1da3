package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"absence/internal/domain/workflow"
)

func TestWorkflowCounters(t *testing.T) {
	c := New()
	c.ObserveFallback(workflow.LevelCompanyAdmin)
	c.ObserveFallback(workflow.LevelCompanyAdmin)
	c.ObserveSelfApprovalSkip()
	c.ObserveOutcome(workflow.MasterRejected)

	if got := testutil.ToFloat64(c.fallbacks.WithLabelValues(string(workflow.LevelCompanyAdmin))); got != 2 {
		t.Fatalf("expected 2 company admin fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(c.selfApprovalSkips); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}
	if got := testutil.ToFloat64(c.outcomes.WithLabelValues(string(workflow.MasterRejected))); got != 1 {
		t.Fatalf("expected 1 rejected outcome, got %v", got)
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	c := New()
	c.Record(http.MethodGet, "/api/v1/workflow/policies", http.StatusOK, 15*time.Millisecond)
	c.ObserveResolution(2, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, series := range []string{"absence_http_requests_total", "absence_workflow_resolutions_total", "absence_workflow_policies_matched"} {
		if !strings.Contains(text, series) {
			t.Fatalf("expected %s in exposition", series)
		}
	}
}
