package shared

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"absence/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects field issues for one payload and answers them as a single 400.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, reason string) {
	v.issues = append(v.issues, ValidationIssue{Field: field, Reason: reason})
}

func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

// OneOf returns the allowed value matching raw case-insensitively. An empty raw is left
// to Required.
func (v *Validator) OneOf(field, raw string, allowed ...string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, candidate := range allowed {
		if strings.EqualFold(raw, candidate) {
			return candidate
		}
	}
	v.add(field, "must be one of "+strings.Join(allowed, ", "))
	return ""
}

func (v *Validator) Day(field, raw string) time.Time {
	day, err := ParseDay(raw)
	if err != nil {
		v.add(field, "must be a date in YYYY-MM-DD format")
		return time.Time{}
	}
	return day
}

// Span checks that end is not before start; a zero bound was already reported.
func (v *Validator) Span(startField string, start time.Time, endField string, end time.Time) {
	if start.IsZero() || end.IsZero() || !end.Before(start) {
		return
	}
	v.add(endField, "must be on or after "+startField)
}

func (v *Validator) Issues() []ValidationIssue {
	out := append([]ValidationIssue(nil), v.issues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Reject writes the collected issues and reports whether any were found.
func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if len(v.issues) == 0 {
		return false
	}
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
		map[string]any{"fields": v.Issues()}, requestID)
	return true
}
