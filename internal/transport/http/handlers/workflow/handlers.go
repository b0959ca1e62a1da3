package workflowhandler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"absence/internal/domain/auth"
	"absence/internal/domain/workflow"
	"absence/internal/transport/http/api"
	"absence/internal/transport/http/middleware"
	"absence/internal/transport/http/shared"
)

type Handler struct {
	Engine             *workflow.Engine
	DefaultRequestType string
}

func NewHandler(engine *workflow.Engine, defaultRequestType string) *Handler {
	if defaultRequestType == "" {
		defaultRequestType = workflow.RequestTypeLeave
	}
	return &Handler{Engine: engine, DefaultRequestType: defaultRequestType}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workflow", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/policies", h.handlePolicies)
		r.Post("/preview", h.handlePreview)
		r.With(middleware.RequireAdmin).Get("/fallback/department-managers", h.handleDepartmentManagers)
		r.With(middleware.RequireAdmin).Get("/fallback/company-admins", h.handleCompanyAdmins)
	})
}

type previewRequest struct {
	UserID      string `json:"userId"`
	ProjectID   string `json:"projectId"`
	RequestType string `json:"requestType"`
}

// subject picks the user a query is about. Only admins may look at someone else.
func (h *Handler) subject(user auth.UserContext, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == user.UserID {
		return user.UserID, true
	}
	return requested, user.IsAdmin
}

func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request, user auth.UserContext, userID, projectID, requestType string) (workflow.RequestContext, bool) {
	requestID := middleware.GetRequestID(r.Context())
	rc, err := h.Engine.RequestContext(r.Context(), userID, projectID, requestType)
	if err != nil {
		shared.FailError(w, err, requestID)
		return workflow.RequestContext{}, false
	}
	if rc.CompanyID != user.CompanyID {
		shared.FailError(w, workflow.NewNotFoundError("user", userID), requestID)
		return workflow.RequestContext{}, false
	}
	return rc, true
}

func (h *Handler) handlePolicies(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	userID, allowed := h.subject(user, query.Get("userId"))
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "company admin required to inspect other users", requestID)
		return
	}
	requestType := query.Get("requestType")
	if requestType == "" {
		requestType = h.DefaultRequestType
	}
	projectID := query.Get("projectId")
	if _, ok := h.requestContext(w, r, user, userID, projectID, requestType); !ok {
		return
	}

	policies, err := h.Engine.FindMatchingPolicies(r.Context(), userID, projectID, requestType)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, policies, requestID)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload previewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid json payload", requestID)
		return
	}
	userID, allowed := h.subject(user, payload.UserID)
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "company admin required to preview other users", requestID)
		return
	}
	if payload.RequestType == "" {
		payload.RequestType = h.DefaultRequestType
	}
	if _, ok := h.requestContext(w, r, user, userID, payload.ProjectID, payload.RequestType); !ok {
		return
	}

	res, err := h.Engine.Resolve(r.Context(), userID, payload.ProjectID, payload.RequestType)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, res, requestID)
}

func (h *Handler) handleDepartmentManagers(w http.ResponseWriter, r *http.Request) {
	h.handleFallback(w, r, workflow.LevelDepartmentManager)
}

func (h *Handler) handleCompanyAdmins(w http.ResponseWriter, r *http.Request) {
	h.handleFallback(w, r, workflow.LevelCompanyAdmin)
}

func (h *Handler) handleFallback(w http.ResponseWriter, r *http.Request, level workflow.FallbackLevel) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	userID, _ := h.subject(user, r.URL.Query().Get("userId"))

	rc, ok := h.requestContext(w, r, user, userID, "", h.DefaultRequestType)
	if !ok {
		return
	}
	var ids []string
	var err error
	if level == workflow.LevelDepartmentManager {
		ids, err = h.Engine.DepartmentManagerFallback(r.Context(), rc)
	} else {
		ids, err = h.Engine.CompanyAdminFallback(r.Context(), rc)
	}
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, map[string]any{"level": level, "userId": userID, "resolverIds": ids}, requestID)
}
