package notifications

import (
	"context"
	"log/slog"
	"time"

	"absence/internal/platform/events"
)

type Notification struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	LeaveRequestID string     `json:"leaveRequestId,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Recipient is one user to notify and the channels they asked for.
type Recipient struct {
	UserID string
	Email  bool
	Push   bool
}

type Notice struct {
	CompanyID      string
	LeaveRequestID string
	ActorID        string
	Type           string
	Title          string
	Body           string
	Recipients     []Recipient
}

// Event is the bus payload consumed by the delivery service.
type Event struct {
	EventType      string           `json:"eventType"`
	CompanyID      string           `json:"companyId"`
	LeaveRequestID string           `json:"leaveRequestId,omitempty"`
	ActorID        string           `json:"actorId,omitempty"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Recipients     []EventRecipient `json:"recipients"`
}

type EventRecipient struct {
	UserID   string   `json:"userId"`
	Channels []string `json:"channels"`
}

// Mailer delivers the email channel.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Service struct {
	store  StoreAPI
	bus    events.Publisher
	mailer Mailer
	log    *slog.Logger
}

type Option func(*Service)

// WithMailer sends email directly to recipients that asked for it.
func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func New(store StoreAPI, bus events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if bus == nil {
		bus = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, bus: bus, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify stores an in-app notification per recipient and publishes one delivery event.
// Publishing failures are logged and never fail the caller.
func (s *Service) Notify(ctx context.Context, notice Notice) error {
	recipients := mergeRecipients(notice.Recipients, notice.ActorID)
	if len(recipients) == 0 {
		return nil
	}

	var emailTo []string
	evt := Event{
		EventType:      notice.Type,
		CompanyID:      notice.CompanyID,
		LeaveRequestID: notice.LeaveRequestID,
		ActorID:        notice.ActorID,
		Title:          notice.Title,
		Body:           notice.Body,
	}
	for _, r := range recipients {
		if err := s.store.CreateNotification(ctx, notice.CompanyID, r.UserID, notice.LeaveRequestID, notice.Type, notice.Title, notice.Body); err != nil {
			return err
		}
		channels := []string{ChannelInApp}
		if r.Email {
			channels = append(channels, ChannelEmail)
			emailTo = append(emailTo, r.UserID)
		}
		if r.Push {
			channels = append(channels, ChannelPush)
		}
		evt.Recipients = append(evt.Recipients, EventRecipient{UserID: r.UserID, Channels: channels})
	}

	if err := s.bus.Publish(ctx, events.Subject("notifications", "leave", notice.Type), evt); err != nil {
		s.log.Warn("notification publish failed", "type", notice.Type, "leaveRequestId", notice.LeaveRequestID, "err", err)
	}
	s.sendEmails(ctx, notice, emailTo)
	return nil
}

func (s *Service) sendEmails(ctx context.Context, notice Notice, userIDs []string) {
	if s.mailer == nil || len(userIDs) == 0 {
		return
	}
	addresses, err := s.store.EmailAddresses(ctx, notice.CompanyID, userIDs)
	if err != nil {
		s.log.Warn("notification email lookup failed", "leaveRequestId", notice.LeaveRequestID, "err", err)
		return
	}
	for _, id := range userIDs {
		to := addresses[id]
		if to == "" {
			continue
		}
		if err := s.mailer.Send(ctx, to, notice.Title, notice.Body); err != nil {
			s.log.Warn("notification email failed", "userId", id, "type", notice.Type, "err", err)
		}
	}
}

func (s *Service) List(ctx context.Context, companyID, userID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, companyID, userID, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context, companyID, userID string) (int, error) {
	return s.store.CountUnread(ctx, companyID, userID)
}

func (s *Service) MarkRead(ctx context.Context, companyID, userID, notificationID string) error {
	return s.store.MarkRead(ctx, companyID, userID, notificationID)
}

// mergeRecipients dedups by user, ORs channel flags and drops the actor.
func mergeRecipients(in []Recipient, actorID string) []Recipient {
	index := map[string]int{}
	var out []Recipient
	for _, r := range in {
		if r.UserID == "" || r.UserID == actorID {
			continue
		}
		if i, ok := index[r.UserID]; ok {
			out[i].Email = out[i].Email || r.Email
			out[i].Push = out[i].Push || r.Push
			continue
		}
		index[r.UserID] = len(out)
		out = append(out, r)
	}
	return out
}
