package leavehandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"absence/internal/domain/auth"
	"absence/internal/domain/leave"
	"absence/internal/domain/workflow"
	"absence/internal/transport/http/api"
	"absence/internal/transport/http/middleware"
	"absence/internal/transport/http/shared"
)

// Service is the leave lifecycle the handler drives. *leave.Service implements it.
type Service interface {
	Submit(ctx context.Context, viewer leave.Viewer, in leave.SubmitInput) (leave.Detail, error)
	ActOnStep(ctx context.Context, viewer leave.Viewer, requestID, stepID string, decision workflow.StepState, comment string) (leave.Detail, error)
	Override(ctx context.Context, viewer leave.Viewer, requestID string, decision workflow.LeaveStatus, reason string) (leave.Detail, error)
	Get(ctx context.Context, viewer leave.Viewer, requestID string) (leave.Detail, error)
	PendingForApprover(ctx context.Context, viewer leave.Viewer) ([]leave.PendingStep, error)
	TrailPDF(ctx context.Context, viewer leave.Viewer, requestID string) ([]byte, error)
}

var _ Service = (*leave.Service)(nil)

type Handler struct {
	Service     Service
	Idempotency middleware.IdempotencyKeeper
}

func NewHandler(service Service, idempotency middleware.IdempotencyKeeper) *Handler {
	return &Handler{Service: service, Idempotency: idempotency}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/approvals", h.handlePendingApprovals)
		r.With(middleware.Idempotent(h.Idempotency, "leave.submit")).Post("/requests", h.handleSubmit)
		r.Get("/requests/{requestID}", h.handleGet)
		r.Get("/requests/{requestID}/trail.pdf", h.handleTrail)
		r.Post("/requests/{requestID}/steps/{stepID}/approve", h.handleDecision(workflow.StepApproved))
		r.Post("/requests/{requestID}/steps/{stepID}/reject", h.handleDecision(workflow.StepRejected))
		r.With(middleware.RequireAdmin).Post("/requests/{requestID}/override", h.handleOverride)
	})
}

func viewerOf(user auth.UserContext) leave.Viewer {
	return leave.Viewer{UserID: user.UserID, CompanyID: user.CompanyID, IsAdmin: user.IsAdmin}
}

type submitRequest struct {
	LeaveTypeID string `json:"leaveTypeId"`
	ProjectID   string `json:"projectId"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Reason      string `json:"reason"`
}

type decisionRequest struct {
	Comment string `json:"comment"`
}

type overrideRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload submitRequest
	if err := decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid json payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("leaveTypeId", payload.LeaveTypeID)
	start := v.Day("startDate", payload.StartDate)
	end := v.Day("endDate", payload.EndDate)
	v.Span("startDate", start, "endDate", end)
	if v.Reject(w, requestID) {
		return
	}

	detail, err := h.Service.Submit(r.Context(), viewerOf(user), leave.SubmitInput{
		LeaveTypeID: strings.TrimSpace(payload.LeaveTypeID),
		ProjectID:   strings.TrimSpace(payload.ProjectID),
		StartDate:   start,
		EndDate:     end,
		Reason:      payload.Reason,
	})
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Created(w, detail, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	detail, err := h.Service.Get(r.Context(), viewerOf(user), chi.URLParam(r, "requestID"))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, detail, requestID)
}

func (h *Handler) handleDecision(decision workflow.StepState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUser(r.Context())
		requestID := middleware.GetRequestID(r.Context())

		var payload decisionRequest
		if err := decode(r, &payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid json payload", requestID)
			return
		}
		detail, err := h.Service.ActOnStep(r.Context(), viewerOf(user),
			chi.URLParam(r, "requestID"), chi.URLParam(r, "stepID"), decision, payload.Comment)
		if err != nil {
			shared.FailError(w, err, requestID)
			return
		}
		api.Success(w, detail, requestID)
	}
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload overrideRequest
	if err := decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid json payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("decision", payload.Decision)
	decision := v.OneOf("decision", payload.Decision, string(workflow.LeaveApproved), string(workflow.LeaveRejected))
	v.Required("reason", payload.Reason)
	if v.Reject(w, requestID) {
		return
	}

	detail, err := h.Service.Override(r.Context(), viewerOf(user), chi.URLParam(r, "requestID"), workflow.LeaveStatus(decision), payload.Reason)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, detail, requestID)
}

func (h *Handler) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	items, err := h.Service.PendingForApprover(r.Context(), viewerOf(user))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, items, requestID)
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	leaveRequestID := chi.URLParam(r, "requestID")

	pdf, err := h.Service.TrailPDF(r.Context(), viewerOf(user), leaveRequestID)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=approval-trail-"+leaveRequestID+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
