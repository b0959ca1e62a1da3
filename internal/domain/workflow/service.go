package workflow

import (
	"context"
	"log/slog"
	"time"
)

// Recorder receives resolution telemetry. The platform metrics collector implements it.
type Recorder interface {
	ObserveResolution(policies int, elapsed time.Duration)
	ObserveFallback(level FallbackLevel)
	ObserveSelfApprovalSkip()
	ObserveOutcome(state MasterState)
}

type noopRecorder struct{}

func (noopRecorder) ObserveResolution(int, time.Duration) {}
func (noopRecorder) ObserveFallback(FallbackLevel)        {}
func (noopRecorder) ObserveSelfApprovalSkip()             {}
func (noopRecorder) ObserveOutcome(MasterState)           {}

// Engine resolves approval workflows. It holds no state between calls.
type Engine struct {
	store   RuleStore
	metrics Recorder
	log     *slog.Logger
}

type Option func(*Engine)

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

func NewEngine(store RuleStore, opts ...Option) *Engine {
	e := &Engine{store: store, metrics: noopRecorder{}, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recorder exposes the engine's recorder so callers can report outcomes they aggregate.
func (e *Engine) Recorder() Recorder {
	return e.metrics
}

// RequestContext loads the requester and builds the resolution input.
func (e *Engine) RequestContext(ctx context.Context, userID, projectID, requestType string) (RequestContext, error) {
	subj, err := e.loadSubject(ctx, userID, projectID)
	if err != nil {
		return RequestContext{}, err
	}
	return subj.requestContext(requestType), nil
}

// Resolve runs policy matching, step resolution and the initial aggregation in one pass.
func (e *Engine) Resolve(ctx context.Context, userID, projectID, requestType string) (Resolution, error) {
	start := time.Now()
	subj, err := e.loadSubject(ctx, userID, projectID)
	if err != nil {
		return Resolution{}, err
	}
	policies, err := e.matchPolicies(ctx, subj, requestType)
	if err != nil {
		return Resolution{}, err
	}
	rc := subj.requestContext(requestType)
	wf, err := e.GenerateSubFlows(ctx, policies, rc)
	if err != nil {
		return Resolution{}, err
	}
	outcome := AggregateOutcome(wf)
	e.metrics.ObserveResolution(len(policies), time.Since(start))

	e.log.Info("workflow resolved",
		"requesterId", rc.RequesterID,
		"companyId", rc.CompanyID,
		"projectId", rc.ProjectID,
		"requestType", rc.RequestType,
		"policies", len(policies),
		"subFlows", len(wf.SubFlows),
		"masterState", outcome.MasterState,
	)
	if wf.Unrouted() {
		e.log.Warn("no approval policy matched", "requesterId", rc.RequesterID, "requestType", rc.RequestType)
	}

	return Resolution{Context: rc, Policies: policies, Workflow: wf, Outcome: outcome}, nil
}
