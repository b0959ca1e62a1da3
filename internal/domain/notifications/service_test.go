package notifications

import (
	"context"
	"testing"
)

type memStore struct {
	created []string
}

func (m *memStore) CreateNotification(_ context.Context, _, userID, _, _, _, _ string) error {
	m.created = append(m.created, userID)
	return nil
}

func (m *memStore) ListNotifications(context.Context, string, string, int, int) ([]Notification, error) {
	return nil, nil
}

func (m *memStore) CountUnread(context.Context, string, string) (int, error) {
	return len(m.created), nil
}

func (m *memStore) MarkRead(context.Context, string, string, string) error { return nil }

func (m *memStore) EmailAddresses(_ context.Context, _ string, userIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range userIDs {
		if id != "nomail" {
			out[id] = id + "@acme.example"
		}
	}
	return out, nil
}

type captureMailer struct {
	to []string
}

func (c *captureMailer) Send(_ context.Context, to, _, _ string) error {
	c.to = append(c.to, to)
	return nil
}

type captureBus struct {
	subject string
	event   Event
}

func (c *captureBus) Publish(_ context.Context, subject string, payload any) error {
	c.subject = subject
	c.event = payload.(Event)
	return nil
}

func TestNotifyMergesRecipientsAndSkipsActor(t *testing.T) {
	store := &memStore{}
	bus := &captureBus{}
	svc := New(store, bus, nil)

	err := svc.Notify(context.Background(), Notice{
		CompanyID: "c1", LeaveRequestID: "lr-1", ActorID: "peter", Type: TypeApprovalRequired,
		Title: "Approval required", Body: "Peter requested leave",
		Recipients: []Recipient{{UserID: "bea", Email: true}, {UserID: "peter"}, {UserID: "bea", Push: true}, {UserID: "sam"}},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(store.created) != 2 || store.created[0] != "bea" || store.created[1] != "sam" {
		t.Fatalf("unexpected stored recipients: %v", store.created)
	}
	if bus.subject != "notifications.leave.approval_required" {
		t.Fatalf("unexpected subject %q", bus.subject)
	}
	bea := bus.event.Recipients[0]
	if len(bea.Channels) != 3 {
		t.Fatalf("expected in-app, email and push for bea, got %v", bea.Channels)
	}
}

func TestNotifyWithoutRecipientsIsNoop(t *testing.T) {
	store := &memStore{}
	bus := &captureBus{}
	if err := New(store, bus, nil).Notify(context.Background(), Notice{ActorID: "u", Recipients: []Recipient{{UserID: "u"}}}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(store.created) != 0 || bus.subject != "" {
		t.Fatal("expected nothing stored or published")
	}
}

func TestNotifyEmailsOptedInRecipients(t *testing.T) {
	mailer := &captureMailer{}
	svc := New(&memStore{}, nil, nil, WithMailer(mailer))
	err := svc.Notify(context.Background(), Notice{
		CompanyID: "c1", Type: TypeLeaveApproved, Title: "Approved", Body: "ok",
		Recipients: []Recipient{{UserID: "hank", Email: true}, {UserID: "sam"}, {UserID: "nomail", Email: true}},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(mailer.to) != 1 || mailer.to[0] != "hank@acme.example" {
		t.Fatalf("expected one email to hank, got %v", mailer.to)
	}
}
