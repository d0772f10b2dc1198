// Package notify carries events to non-realtime channels (email/SMS
// workers, push gateways). The core calls it opportunistically and never
// blocks on its result.
package notify

// Notifier dispatches a notification for a user. Implementations must be
// fire-and-forget: failures are logged, never surfaced to event handling.
type Notifier interface {
	Dispatch(userID, kind string, payload any)
}

// NopNotifier drops every notification. Used in tests and in deployments
// without a broker.
type NopNotifier struct{}

func (NopNotifier) Dispatch(userID, kind string, payload any) {}
