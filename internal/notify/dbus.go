//go:build linux

package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"
)

// dbusNotifier sends notifications via D-Bus.
type dbusNotifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	actions chan Action
}

// New creates a Notifier that sends desktop notifications via D-Bus.
// Returns a no-op notifier if D-Bus is unavailable.
func New() (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return &stubNotifier{}, nil //nolint:nilerr // graceful fallback when D-Bus unavailable
	}

	obj := conn.Object(dbusNotifyDest, dbusNotifyPath)
	n := &dbusNotifier{conn: conn, obj: obj, actions: make(chan Action, 4)}

	// Action clicks arrive as ActionInvoked signals on the session bus.
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusNotifyPath),
		dbus.WithMatchInterface(dbusNotifyInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err == nil {
		sigs := make(chan *dbus.Signal, 16)
		conn.Signal(sigs)
		go n.pumpActions(sigs)
	}
	return n, nil
}

func (n *dbusNotifier) pumpActions(sigs <-chan *dbus.Signal) {
	for sig := range sigs {
		if sig.Name != dbusNotifyInterface+".ActionInvoked" || len(sig.Body) != 2 {
			continue
		}
		id, idOK := sig.Body[0].(uint32)
		key, keyOK := sig.Body[1].(string)
		if !idOK || !keyOK {
			continue
		}
		select {
		case n.actions <- Action{ID: id, Key: key}:
		default:
			// Nobody is draining; drop rather than block the signal pump.
		}
	}
}

// Actions delivers notification button clicks.
func (n *dbusNotifier) Actions() <-chan Action {
	return n.actions
}

// Notify sends a notification via D-Bus.
func (n *dbusNotifier) Notify(notif Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(notif.Urgency)),
		"desktop-entry": dbus.MakeVariant("vibra"),
	}

	actions := notif.Actions
	if actions == nil {
		actions = []string{}
	}

	// D-Bus Notify method signature:
	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := n.obj.Call(
		dbusNotifyInterface+".Notify",
		0,                // flags
		"Vibra",          // app_name
		notif.ReplacesID, // replaces_id
		notif.Icon,       // app_icon (path or icon name)
		notif.Title,      // summary
		notif.Body,       // body
		actions,          // actions
		hints,            // hints
		notif.Timeout,    // expire_timeout
	)

	if call.Err != nil {
		return 0, call.Err
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// Close closes a notification by ID.
func (n *dbusNotifier) Close(id uint32) error {
	call := n.obj.Call(dbusNotifyInterface+".CloseNotification", 0, id)
	return call.Err
}

// stubNotifier is used when D-Bus is unavailable.
type stubNotifier struct{}

func (s *stubNotifier) Notify(_ Notification) (uint32, error) {
	return 0, nil
}

func (s *stubNotifier) Close(_ uint32) error {
	return nil
}

func (s *stubNotifier) Actions() <-chan Action {
	return nil
}
