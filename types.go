package trust

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Mailer sends account lifecycle emails. Delivery is fire and forget from
// this package's perspective; failures are logged, never retried here.
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, user *User) error
	SendTrialInitiationEmail(ctx context.Context, email string) error
}

// ReferenceEventType enumerates supported reference events.
type ReferenceEventType string

const (
	ReferenceEventSignup ReferenceEventType = "signup"
)

// ReferenceEvent captures telemetry about a completed operation.
type ReferenceEvent struct {
	Type                   ReferenceEventType
	UserID                 string
	SignupInitiationPath   string
	ReceiveMarketingEmails bool
}

// ReferenceEvents consumes reference events, best effort. Sink errors must
// never block the operation that raised them.
type ReferenceEvents interface {
	Raise(ctx context.Context, event ReferenceEvent) error
}

// ReferenceEventsFunc adapts a function to the ReferenceEvents interface.
type ReferenceEventsFunc func(ctx context.Context, event ReferenceEvent) error

// Raise implements ReferenceEvents.
func (f ReferenceEventsFunc) Raise(ctx context.Context, event ReferenceEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopReferenceEvents struct{}

func (noopReferenceEvents) Raise(context.Context, ReferenceEvent) error {
	return nil
}

func normalizeReferenceEvents(s ReferenceEvents) ReferenceEvents {
	if s == nil {
		return noopReferenceEvents{}
	}
	return s
}

type noopMailer struct{}

func (noopMailer) SendWelcomeEmail(ctx context.Context, user *User) error {
	return nil
}

func (noopMailer) SendTrialInitiationEmail(ctx context.Context, email string) error {
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

// Settings holds the injected policy gates.
type Settings interface {
	GetDisableUserRegistration() bool
}

// SettingsObject is a plain Settings implementation.
type SettingsObject struct {
	DisableUserRegistration bool
}

func (s SettingsObject) GetDisableUserRegistration() bool {
	return s.DisableUserRegistration
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] TRUST "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] TRUST "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] TRUST "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
