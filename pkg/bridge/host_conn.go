package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/lattice-vm/vdbridged/pkg/hostlink"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// openHostChannel (re)opens the virtio port. The caller is responsible
// for starting pumpHost afterward.
func (c *Core) openHostChannel() error {
	ch, err := hostlink.NewFileChannel(c.cfg.HostPortPath)
	if err != nil {
		return err
	}
	c.host = ch
	c.hostEverUp = true
	return nil
}

// pumpHost reads frames off the host channel and forwards them as
// events, until ctx is cancelled or a read error occurs. It never
// mutates Core state directly.
func (c *Core) pumpHost(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		host := c.host
		if host == nil {
			return
		}
		frame, err := wire.ReadFrame(host, c.caps)
		if err != nil {
			if errors.Is(err, wire.ErrBadProtocolVersion) || errors.Is(err, wire.ErrUnknownType) || errors.Is(err, wire.ErrBadSize) {
				// Wire-format violation: drop the frame, keep the channel.
				c.log.Error("dropping malformed host message", "err", err)
				continue
			}
			select {
			case c.events <- event{kind: evHostReadErr, hostErr: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case c.events <- event{kind: evHostFrame, hostMsg: frame}:
		case <-ctx.Done():
			return
		}
	}
}

// handleHostReadError implements spec.md §4.7 and §7's host-reconnect
// policy: exactly one reconnect attempt, preserving clientConnected
// across a synthesized CLIENT_DISCONNECTED; a second consecutive
// failure is fatal. A read error from a channel the coupler has already
// closed is ignored: no reconnect is attempted.
func (c *Core) handleHostReadError(ctx context.Context, wg interface {
	Go(func())
}) bool {
	if c.host == nil {
		return false
	}
	c.log.Warn("host channel read error; attempting one reconnect", "err", errors.New("closed or I/O error"))

	wasConnected := c.clientConnected
	c.broadcastClientDisconnected()

	if c.host != nil {
		c.host.Close()
		c.host = nil
	}

	if err := c.openHostChannel(); err != nil {
		c.log.Error("host channel reconnect failed; fatal", "err", err)
		return true
	}

	c.clientConnected = wasConnected
	wg.Go(func() { c.pumpHost(ctx) })
	return false
}

// writeHost encodes and writes a frame to the host channel, if open.
func (c *Core) writeHost(f wire.Frame) {
	if c.host == nil {
		return
	}
	f.Header.Protocol = wire.ProtocolVersion
	if err := wire.WriteFrame(c.host, f, c.caps); err != nil {
		c.log.Error("host channel write failed", "type", f.Header.Type, "err", err)
	}
}

// closeHostChannel flushes nothing explicit (writes are unbuffered on
// the underlying file) and releases the channel. Per SPEC_FULL.md §7's
// single-shot mode (-o), once the channel has been up and is now closing
// again, that's one full session: the daemon quits cleanly rather than
// waiting for a new one.
func (c *Core) closeHostChannel() {
	if c.host == nil {
		return
	}
	if err := c.host.Close(); err != nil {
		c.log.Warn("error closing host channel", "err", err)
	}
	c.host = nil

	if c.cfg.SingleShot && c.hostEverUp {
		c.log.Info("single-shot mode: session ended, exiting")
		c.quit = true
	}
}

var errHostClosed = fmt.Errorf("bridge: host channel closed")
