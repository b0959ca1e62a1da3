package email

import (
	"context"
	"strings"
	"testing"

	"absence/internal/platform/config"
)

func TestBuildMessageStripsHeaderInjection(t *testing.T) {
	msg := string(buildMessage("absence@acme.example", "bea@acme.example", "Leave request\r\nBcc: x@evil", "body"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("subject must not inject headers: %q", msg)
	}
	if !strings.HasPrefix(msg, "From: absence@acme.example\r\nTo: bea@acme.example\r\n") {
		t.Fatalf("unexpected headers: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("body must follow a blank line: %q", msg)
	}
}

func TestNewWithoutHostIsNoop(t *testing.T) {
	mailer := New(config.Config{})
	if err := mailer.Send(context.Background(), "bea@acme.example", "s", "b"); err != nil {
		t.Fatalf("noop mailer returned %v", err)
	}
}
