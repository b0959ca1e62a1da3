package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseDayCutsTimestampsToUTCDate(t *testing.T) {
	want := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-07-06", " 2026-07-06 ", "2026-07-06T23:30:00Z", "2026-07-07T01:00:00+02:00"} {
		got, err := ParseDay(raw)
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseDay("06/07/2026"); err == nil {
		t.Fatal("expected error for unsupported layout")
	}
}

func TestValidatorCollectsIssues(t *testing.T) {
	v := NewValidator()
	v.Required("leaveTypeId", " ")
	start := v.Day("startDate", "2026-07-10")
	end := v.Day("endDate", "2026-07-06")
	v.Span("startDate", start, "endDate", end)
	if got := v.OneOf("decision", "approved", "APPROVED", "REJECTED"); got != "APPROVED" {
		t.Fatalf("expected canonical APPROVED, got %q", got)
	}
	if got := v.OneOf("decision", "maybe", "APPROVED", "REJECTED"); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected issues to be rejected")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := body.Error.Details.Fields
	if body.Error.Code != "validation_error" || len(fields) != 3 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if fields[0].Field != "decision" || fields[1].Field != "endDate" || fields[2].Field != "leaveTypeId" {
		t.Fatalf("expected issues sorted by field, got %+v", fields)
	}
}

func TestValidatorWithoutIssuesPasses(t *testing.T) {
	v := NewValidator()
	v.Required("reason", "manual")
	if v.Reject(httptest.NewRecorder(), "") {
		t.Fatal("expected no rejection")
	}
}

func TestParsePageCapsAndIgnoresMalformed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=900&offset=-3", nil)
	if page := ParsePage(r, 50, 200); page.Limit != 200 || page.Offset != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
	r = httptest.NewRequest(http.MethodGet, "/?limit=abc&offset=20", nil)
	if page := ParsePage(r, 50, 200); page.Limit != 50 || page.Offset != 20 {
		t.Fatalf("unexpected page: %+v", page)
	}
}
