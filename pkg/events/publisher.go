package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing session lifecycle events.
type EventPublisher interface {
	PublishSession(ctx context.Context, event *SessionEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishSession is a no-op.
func (p *NoOpPublisher) PublishSession(_ context.Context, _ *SessionEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *SessionEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *SessionEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishSession calls the callback.
func (p *CallbackPublisher) PublishSession(ctx context.Context, event *SessionEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// called even if an earlier one fails; the errors are joined.
type MultiPublisher []EventPublisher

// PublishSession publishes to every non-nil publisher.
func (m MultiPublisher) PublishSession(ctx context.Context, event *SessionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishSession(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
