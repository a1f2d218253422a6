package sessioninfo

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchSessionsDir provides a change signal separate from Logind's D-Bus
// signal subscription (Logind does not start it): an fsnotify watch on
// dir, typically /run/systemd/sessions (systemd-logind rewrites files
// there on every session state change), falling back to a poll ticker
// when the directory can't be watched — e.g. inside containers without
// systemd, per the pattern in api/cmd/settings-sync-daemon/main.go. Every
// event it observes is pushed to notify, coalesced the same way Logind's
// own pump does.
func WatchSessionsDir(dir string, notify chan<- struct{}, log *slog.Logger) (stop func(), err error) {
	if log == nil {
		log = slog.Default()
	}

	watcher, ferr := fsnotify.NewWatcher()
	if ferr != nil {
		return startPollFallback(notify, log), nil
	}
	if addErr := watcher.Add(dir); addErr != nil {
		watcher.Close()
		log.Warn("fsnotify watch on sessions dir failed, falling back to polling", "dir", dir, "err", addErr)
		return startPollFallback(notify, log), nil
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				push(notify)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("sessions dir watcher error", "err", werr)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

const pollInterval = 2 * time.Second

func startPollFallback(notify chan<- struct{}, log *slog.Logger) func() {
	log.Info("using poll-based session change detection", "interval", pollInterval)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				push(notify)
			}
		}
	}()
	return func() { close(done) }
}

func push(notify chan<- struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}
