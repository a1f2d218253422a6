package sessioninfo

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	logindBus  = "org.freedesktop.login1"
	logindPath = "/org/freedesktop/login1"

	managerIface = "org.freedesktop.login1.Manager"
	sessionIface = "org.freedesktop.login1.Session"
	seatIface    = "org.freedesktop.login1.Seat"

	defaultSeat = "seat0"
)

// Logind implements Provider against the system bus's
// org.freedesktop.login1 service, the same interface the teacher's
// logind-stub exports for Mutter (api/cmd/logind-stub/main.go) — here
// consumed as a client rather than served.
type Logind struct {
	conn    *dbus.Conn
	changes chan struct{}
	done    chan struct{}
}

// NewLogind connects to the system bus and subscribes to the signals
// that can change the active session (SessionNew, SessionRemoved,
// PrepareForSleep, and login1.Seat's PropertiesChanged for
// ActiveSession).
func NewLogind() (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("sessioninfo: connect system bus: %w", err)
	}

	l := &Logind{conn: conn, changes: make(chan struct{}, 1), done: make(chan struct{})}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(managerIface),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sessioninfo: subscribe to manager signals: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sessioninfo: subscribe to property signals: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	go l.pump(signals)

	return l, nil
}

func (l *Logind) pump(signals chan *dbus.Signal) {
	for {
		select {
		case <-l.done:
			return
		case <-signals:
			select {
			case l.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (l *Logind) Changes() <-chan struct{} {
	return l.changes
}

func (l *Logind) Close() error {
	close(l.done)
	return l.conn.Close()
}

// SessionForPID calls Manager.GetSessionByPID, then reads the Session
// object's Id property.
func (l *Logind) SessionForPID(ctx context.Context, pid int32) (string, bool) {
	manager := l.conn.Object(logindBus, dbus.ObjectPath(logindPath))

	var sessionPath dbus.ObjectPath
	if err := manager.CallWithContext(ctx, managerIface+".GetSessionByPID", 0, uint32(pid)).Store(&sessionPath); err != nil {
		return "", false
	}

	return l.sessionID(ctx, sessionPath)
}

// ActiveSession reads Seat.ActiveSession on the default seat.
func (l *Logind) ActiveSession(ctx context.Context) (string, bool) {
	seat := l.conn.Object(logindBus, dbus.ObjectPath(logindPath+"/seat/"+defaultSeat))

	variant, err := seat.GetProperty(seatIface + ".ActiveSession")
	if err != nil {
		return "", false
	}

	sessionStruct, ok := variant.Value().([]interface{})
	if !ok || len(sessionStruct) != 2 {
		return "", false
	}
	sessionPath, ok := sessionStruct[1].(dbus.ObjectPath)
	if !ok {
		return "", false
	}

	return l.sessionID(ctx, sessionPath)
}

func (l *Logind) sessionID(ctx context.Context, sessionPath dbus.ObjectPath) (string, bool) {
	session := l.conn.Object(logindBus, sessionPath)
	variant, err := session.GetProperty(sessionIface + ".Id")
	if err != nil {
		return "", false
	}
	id, ok := variant.Value().(string)
	return id, ok && id != ""
}

// Locked reads the Session object's LockedHint property.
func (l *Logind) Locked(ctx context.Context, sessionID string) bool {
	manager := l.conn.Object(logindBus, dbus.ObjectPath(logindPath))

	var sessionPath dbus.ObjectPath
	if err := manager.CallWithContext(ctx, managerIface+".GetSession", 0, sessionID).Store(&sessionPath); err != nil {
		return false
	}

	session := l.conn.Object(logindBus, sessionPath)
	variant, err := session.GetProperty(sessionIface + ".LockedHint")
	if err != nil {
		return false
	}
	locked, _ := variant.Value().(bool)
	return locked
}
