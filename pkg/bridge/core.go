// Package bridge implements the daemon's message-routing and
// session-arbitration core (spec.md §§4–5): the bidirectional protocol
// bridge between the host channel and session agents, the active-agent
// selector, and the tablet/host-channel lifecycle coupler.
//
// The C source multiplexes everything through a single-threaded
// select() loop. The idiomatic Go replacement keeps the single-threaded
// *mutation* discipline — every field on Core is touched only from the
// loop goroutine started by Run — while moving the actual I/O waits into
// supervised reader goroutines (github.com/sourcegraph/conc) that funnel
// decoded events into one channel. Accept-time and per-message I/O still
// happens off the loop goroutine, but never a state mutation.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/lattice-vm/vdbridged/pkg/agentlink"
	"github.com/lattice-vm/vdbridged/pkg/agentproto"
	"github.com/lattice-vm/vdbridged/pkg/confsync"
	"github.com/lattice-vm/vdbridged/pkg/hostlink"
	"github.com/lattice-vm/vdbridged/pkg/introspect"
	"github.com/lattice-vm/vdbridged/pkg/session"
	"github.com/lattice-vm/vdbridged/pkg/sessioninfo"
	"github.com/lattice-vm/vdbridged/pkg/tablet"
	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// Config carries the daemon's external-collaborator wiring: socket/device
// paths and behavioral flags, one field per spec.md §6 CLI flag plus
// SPEC_FULL.md's supplements.
type Config struct {
	HostPortPath   string
	AgentSocket    string
	UinputPath     string
	FakeUinput     bool
	StaticTablet   bool
	SingleShot     bool
	DisableSession bool
	ConfPath       string

	Log *slog.Logger

	// Introspect, if non-nil, receives a Snapshot after every dispatch
	// that could plausibly have changed the daemon's externally
	// observable state. Entirely optional: spec.md names no such
	// surface, and Run behaves identically whether or not it is set.
	Introspect *introspect.Hub
}

// agentConn bundles a registered connection with its network transport,
// so the core can write to it without re-resolving the handle.
type agentConn struct {
	conn   *agentlink.Conn
	handle session.Handle
}

// Core holds every piece of state described in spec.md §3: the
// connection registry, capability set, monitors config, active-agent
// arbiter, clipboard ownership vector, transfer registry, tablet device,
// and host channel. It is constructed once and driven by Run.
type Core struct {
	cfg Config
	log *slog.Logger

	reg       *session.Registry
	arb       *session.Arbiter
	clipboard *session.ClipboardOwnership
	transfers *session.TransferRegistry
	monitors  *session.MonitorsStore
	confWrite confsync.Writer
	provider  sessioninfo.Provider

	caps            *wire.CapabilitySet
	maxClipboard    *int32
	clientConnected bool

	tabletDev *tablet.Device
	agents    map[session.Handle]*agentConn

	host       hostlink.Channel
	hostEverUp bool

	events chan event
	quit   bool
}

// New builds a Core from cfg. provider may be nil (spec.md §4.5 step 2's
// no-session-tracking fallback, or -X).
func New(cfg Config, confWrite confsync.Writer, provider sessioninfo.Provider) *Core {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	reg := session.NewRegistry()
	clipboard := session.NewClipboardOwnership()

	var resolver session.ActiveSessionResolver
	if provider != nil {
		resolver = providerResolver{provider}
	}

	c := &Core{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		clipboard: clipboard,
		transfers: session.NewTransferRegistry(),
		monitors:  session.NewMonitorsStore(),
		confWrite: confWrite,
		provider:  provider,
		caps:      wire.NewCapabilitySetFromWords(nil),
		tabletDev: tablet.New(cfg.UinputPath, cfg.FakeUinput, log),
		agents:    make(map[session.Handle]*agentConn),
		events:    make(chan event, 64),
	}
	c.arb = session.NewArbiter(reg, clipboard, resolver, log)
	return c
}

// providerResolver adapts sessioninfo.Provider to session.ActiveSessionResolver.
type providerResolver struct{ p sessioninfo.Provider }

func (r providerResolver) ActiveSessionID() (string, bool) {
	return r.p.ActiveSession(context.Background())
}

// event is the core loop's single inbound event type, fanned in from the
// host reader, the agent-socket acceptor, each agent reader, and the
// session-info change watcher.
type event struct {
	kind     eventKind
	hostMsg  wire.Frame
	hostErr  error
	accepted *agentlink.Conn
	agent    session.Handle
	agentMsg agentproto.Frame
	agentErr error
}

type eventKind int

const (
	evHostFrame eventKind = iota
	evHostReadErr
	evAgentAccepted
	evAgentFrame
	evAgentReadErr
	evSessionChange
)

// Run drives the core event loop until ctx is cancelled or a fatal
// condition (per spec.md §7) occurs. It opens the host channel at startup
// and sends the unsolicited capability announcement. The agent socket
// server, the session-change pump, the agent readers, the initial host
// reader and any host reader restarted after a read error run under a
// conc.WaitGroup that Run waits for on return; a host reader the coupler
// starts runs outside it (see startHostPump).
func (c *Core) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	server := agentlink.NewServer(c.cfg.AgentSocket, func(ac *agentlink.Conn) {
		select {
		case c.events <- event{kind: evAgentAccepted, accepted: ac}:
		case <-ctx.Done():
			ac.Close()
		}
	}, c.log)

	wg.Go(func() {
		if err := server.Run(); err != nil {
			c.log.Error("agent socket server exited", "err", err)
		}
	})
	defer server.Close()

	if !c.cfg.DisableSession && c.provider != nil {
		wg.Go(func() { c.pumpSessionChanges(ctx) })
	}

	if err := c.openHostChannel(); err != nil {
		return fmt.Errorf("bridge: open host channel: %w", err)
	}
	c.sendCapabilitiesAnnouncement(true)
	wg.Go(func() { c.pumpHost(ctx) })

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			if done := c.dispatch(ctx, ev, &wg); done {
				c.shutdown()
				return nil
			}
		}
	}
}

func (c *Core) dispatch(ctx context.Context, ev event, wg *conc.WaitGroup) (quit bool) {
	switch ev.kind {
	case evHostFrame:
		c.handleHostFrame(ev.hostMsg)
	case evHostReadErr:
		if c.handleHostReadError(ctx, wg) {
			c.quit = true
		}
	case evAgentAccepted:
		c.acceptAgent(ctx, ev.accepted, wg)
	case evAgentFrame:
		c.handleAgentFrame(ev.agent, ev.agentMsg)
	case evAgentReadErr:
		c.disconnectAgent(ev.agent)
	case evSessionChange:
		c.reconcileArbiter()
	}
	c.publishSnapshot()
	return c.quit
}

// publishSnapshot pushes the current externally observable state to the
// introspection hub, if one is configured. Cheap enough to call after
// every dispatch unconditionally rather than threading change-tracking
// through every handler.
func (c *Core) publishSnapshot() {
	if c.cfg.Introspect == nil {
		return
	}
	c.cfg.Introspect.Publish(introspect.Snapshot{
		ActiveAgent:     c.arb.Active().String(),
		ConnectedAgents: len(c.agents),
		ClientConnected: c.clientConnected,
		HostChannelOpen: c.host != nil,
		TabletOpen:      c.tabletDev.IsOpen(),
	})
}

func (c *Core) pumpSessionChanges(ctx context.Context) {
	changes := c.provider.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			select {
			case c.events <- event{kind: evSessionChange}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Core) shutdown() {
	for h := range c.agents {
		c.removeAgent(h)
	}
	if c.host != nil {
		c.host.Close()
		c.host = nil
	}
	if c.tabletDev.IsOpen() {
		c.tabletDev.Close()
	}
}

func (c *Core) newDebugID() string {
	return uuid.NewString()
}
