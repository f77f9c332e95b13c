// Package alert decides when a reading warrants a notification and fans the
// notification out to every registered channel.
package alert

import (
	"context"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// Reason explains why a channel send did not succeed.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonTransport          Reason = "transport"
	ReasonRejected           Reason = "rejected"
	ReasonNoSubscribers      Reason = "no_subscribers"
	ReasonStorage            Reason = "storage"
)

// Result is the typed outcome of a single channel send.
type Result struct {
	OK     bool
	Reason Reason
	Err    error
}

// Success is the result of a delivered send.
func Success() Result { return Result{OK: true} }

// Failure builds a failed result.
func Failure(reason Reason, err error) Result {
	return Result{Reason: reason, Err: err}
}

// Outcome is the metric label for the result.
func (r Result) Outcome() string {
	if r.OK {
		return "success"
	}
	if r.Reason == ReasonNone {
		return "error"
	}
	return string(r.Reason)
}

// Channel is an outbound notification mechanism. Send must bound its own wait
// time and must not panic on configuration problems.
type Channel interface {
	Name() string
	Send(ctx context.Context, req domain.NotificationRequest) Result
}

// EventPublisher receives a record of every dispatch with at least one
// successful channel.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
