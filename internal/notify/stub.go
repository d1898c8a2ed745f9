//go:build !linux

package notify

// Desktop notifications are only wired up on Linux. Elsewhere every call
// succeeds and does nothing, so callers need no platform checks.

type noopNotifier struct{}

// New returns a notifier that discards everything.
func New() (Notifier, error) {
	return noopNotifier{}, nil
}

func (noopNotifier) Notify(Notification) (uint32, error) { return 0, nil }

func (noopNotifier) Close(uint32) error { return nil }

func (noopNotifier) Actions() <-chan Action { return nil }
