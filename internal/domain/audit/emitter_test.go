package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"absence/internal/domain/workflow"
	"absence/internal/platform/requestctx"
)

type recordedRow struct {
	companyID  string
	actorID    string
	action     string
	entityType string
	entityID   string
	requestID  string
	payload    any
}

type fakeRecorder struct {
	rows []recordedRow
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, companyID, actorID, action, entityType, entityID, requestID string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, recordedRow{companyID, actorID, action, entityType, entityID, requestID, payload})
	return nil
}

type fakeBus struct {
	subjects []string
	err      error
}

func (f *fakeBus) Publish(_ context.Context, subject string, _ any) error {
	f.subjects = append(f.subjects, subject)
	return f.err
}

func TestEmitterRecordsAndPublishes(t *testing.T) {
	store := &fakeRecorder{}
	bus := &fakeBus{}
	emitter := NewEmitter(store, bus, nil)

	meta := workflow.EventMeta{LeaveRequestID: "lr-1", CompanyID: "c1", ActorID: "u1"}
	ctx := requestctx.WithRequestID(context.Background(), "req-1")
	if err := emitter.Emit(ctx, workflow.OverrideEvent(meta, workflow.LeaveApproved, "urgent", workflow.LeaveNew)); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected one audit row, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.action != "workflow.admin_override" || row.entityType != "leave_request" || row.entityID != "lr-1" || row.requestID != "req-1" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if len(bus.subjects) != 0 {
		t.Fatalf("expected nothing published before flush, got %v", bus.subjects)
	}

	emitter.Flush(ctx)
	if len(bus.subjects) != 1 || bus.subjects[0] != "audit.workflow.admin_override" {
		t.Fatalf("unexpected subjects: %v", bus.subjects)
	}
	emitter.Flush(ctx)
	if len(bus.subjects) != 1 {
		t.Fatalf("expected flush to drain the buffer, got %v", bus.subjects)
	}
}

func TestEmitterStoreFailureIsNotBuffered(t *testing.T) {
	bus := &fakeBus{}
	emitter := NewEmitter(&fakeRecorder{err: errors.New("db down")}, bus, nil)
	_ = emitter.Emit(context.Background(), workflow.PolicyMatchEvent(workflow.EventMeta{LeaveRequestID: "lr"}, nil))
	emitter.Flush(context.Background())
	if len(bus.subjects) != 0 {
		t.Fatalf("expected unwritten event to stay off the bus, got %v", bus.subjects)
	}
}

func TestEmitterPublishFailureIsNotFatal(t *testing.T) {
	store := &fakeRecorder{}
	emitter := NewEmitter(store, &fakeBus{err: errors.New("down")}, nil)
	err := emitter.Emit(context.Background(), workflow.PolicyMatchEvent(workflow.EventMeta{LeaveRequestID: "lr"}, nil))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	emitter.Flush(context.Background())
	if len(store.rows) != 1 {
		t.Fatal("expected audit row despite bus failure")
	}
}

func TestEmitterStoreFailurePropagates(t *testing.T) {
	emitter := NewEmitter(&fakeRecorder{err: errors.New("db down")}, nil, nil)
	if err := emitter.Emit(context.Background(), workflow.PolicyMatchEvent(workflow.EventMeta{}, nil)); err == nil {
		t.Fatal("expected store error")
	}
}

func TestBuildBaseQueryFilters(t *testing.T) {
	query, args := buildBaseQuery("SELECT 1", "c1", Filter{EntityType: "leave_request", EntityID: "lr-1"})
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	want := "SELECT 1 FROM audit_events WHERE company_id::text = $1 AND entity_type = $2 AND entity_id = $3"
	if query != want {
		t.Fatalf("unexpected query:\n%s", query)
	}
}

func TestListQueryOrdersByWriteSequence(t *testing.T) {
	query, args := buildListQuery("c1", Filter{EntityID: "lr-1"}, 50, 0)
	if !strings.HasSuffix(query, " ORDER BY seq LIMIT $3 OFFSET $4") {
		t.Fatalf("unexpected ordering:\n%s", query)
	}
	if len(args) != 4 || args[2] != 50 || args[3] != 0 {
		t.Fatalf("unexpected args: %v", args)
	}
}
