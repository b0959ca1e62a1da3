package audit

import (
	"context"
	"log/slog"
	"sync"

	"absence/internal/domain/workflow"
	"absence/internal/platform/events"
	"absence/internal/platform/requestctx"
)

// Recorder persists one audit row.
type Recorder interface {
	Record(ctx context.Context, companyID, actorID, action, entityType, entityID, requestID string, payload any) error
}

// Emitter writes workflow audit events to the audit table and mirrors them on the bus.
// Rows are written on Emit; the bus only sees them on Flush, which callers run after the
// surrounding transaction commits. A failed publish is logged; a failed write is returned.
type Emitter struct {
	store   Recorder
	bus     events.Publisher
	log     *slog.Logger
	mu      sync.Mutex
	pending []workflow.AuditEvent
}

var _ workflow.AuditEmitter = (*Emitter)(nil)

func NewEmitter(store Recorder, bus events.Publisher, logger *slog.Logger) *Emitter {
	if bus == nil {
		bus = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, bus: bus, log: logger}
}

func (e *Emitter) Emit(ctx context.Context, evt workflow.AuditEvent) error {
	requestID := requestctx.GetRequestID(ctx)
	if err := e.store.Record(ctx, evt.CompanyID, evt.ActorID, string(evt.Action), evt.EntityType, evt.EntityID, requestID, evt.Payload); err != nil {
		e.log.Error("audit write failed", "action", evt.Action, "entityId", evt.EntityID, "err", err)
		return err
	}
	e.mu.Lock()
	e.pending = append(e.pending, evt)
	e.mu.Unlock()
	return nil
}

// Flush publishes every event written since the last flush.
func (e *Emitter) Flush(ctx context.Context) {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, evt := range pending {
		if err := e.bus.Publish(ctx, events.Subject("audit", string(evt.Action)), evt); err != nil {
			e.log.Warn("audit publish failed", "action", evt.Action, "entityId", evt.EntityID, "err", err)
		}
	}
}
