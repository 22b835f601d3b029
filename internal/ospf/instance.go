// Package ospf also supplies the instance.Protocol[Input] adapter (C2/C7):
// the neighbor table, transport lifecycle, and northbound surface that
// drive the pure FSM and codec above from real interface and ibus events,
// generalizing bfd.Manager's map-behind-a-mutex-plus-dispatch-goroutine
// shape to OSPF's per-interface neighbor set.
package ospf

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/holo-suite/holod/internal/ibus"
	"github.com/holo-suite/holod/internal/lsdb"
	"github.com/holo-suite/holod/internal/northbound"
)

// Input is the instance's protocol-specific message type (instance.Protocol's
// In parameter): a decoded packet arriving on one interface's transport.
type Input struct {
	IfName  string
	SrcAddr netip.Addr
	Header  Header
	Body    []byte
}

// neighbor tracks one adjacency's FSM state and the last Hello it sent,
// keyed by router ID within an interface.
type neighbor struct {
	routerID uint32
	addr     netip.Addr
	state    State
}

// link is one enabled interface: its transport (nil until the ibus reports
// it operative and addressed) and its neighbor set.
type link struct {
	ifName    string
	addr      netip.Addr
	ifIndex   int
	transport *Transport
	cancel    context.CancelFunc
	neighbors map[uint32]*neighbor
}

// Instance implements instance.Protocol[Input] for one OSPFv2 process.
type Instance struct {
	name     string
	routerID uint32
	areaID   uint32
	logger   *slog.Logger
	bus      *ibus.Bus
	ctx      context.Context //nolint:containedctx // stored to start/stop per-interface transports from async ibus handlers, not held across blocking calls.

	lsdb *lsdb.Database[LSAKey, Record]

	mu    sync.Mutex
	links map[string]*link

	// post delivers decoded packets from a link's transport goroutine back
	// into the owning instance.Container's input channel.
	post func(Input)
}

// NewInstance creates an OSPF process for the given router ID and area,
// bound to bus. ctx bounds every per-interface transport goroutine the
// instance starts in response to ibus interface events; it is normally the
// daemon's top-level shutdown context. post must forward to the
// instance.Container wrapping this Instance (typically container.Post).
func NewInstance(ctx context.Context, name string, routerID, areaID uint32, bus *ibus.Bus, post func(Input), logger *slog.Logger) *Instance {
	return &Instance{
		name:     name,
		routerID: routerID,
		areaID:   areaID,
		logger:   logger.With(slog.String("instance", name)),
		bus:      bus,
		ctx:      ctx,
		lsdb:     lsdb.New[LSAKey, Record](),
		links:    make(map[string]*link),
		post:     post,
	}
}

// Name implements instance.Protocol.
func (in *Instance) Name() string { return in.name }

// Subscription implements instance.Protocol: the instance needs interface
// and address events to know where to open transports, and BFD session
// state to drive EventLLDown on a liveness failure (spec.md §4.7's "BFD
// session state down" neighbor-kill path).
func (in *Instance) Subscription() ibus.Filter {
	return ibus.Filter{Kinds: []ibus.Kind{ibus.KindInterface, ibus.KindInterfaceAddress, ibus.KindBfdSession}}
}

// Callbacks implements instance.Protocol, exposing neighbor and LSDB state
// to the northbound registry.
func (in *Instance) Callbacks() northbound.Callbacks {
	return northbound.Callbacks{
		Get: func(_ context.Context, path string) (northbound.StateTree, error) {
			return in.stateTree(path), nil
		},
	}
}

func (in *Instance) stateTree(string) northbound.StateTree {
	in.mu.Lock()
	defer in.mu.Unlock()

	tree := make(northbound.StateTree)
	for ifName, l := range in.links {
		for rid, n := range l.neighbors {
			tree[fmt.Sprintf("/ospf/interface/%s/neighbor/%d/state", ifName, rid)] = n.state.String()
		}
	}
	tree["/ospf/lsdb/count"] = in.lsdb.Len()
	return tree
}

// ProcessIbusMsg implements instance.Protocol.
func (in *Instance) ProcessIbusMsg(msg ibus.Message) {
	switch payload := msg.Payload.(type) {
	case ibus.InterfaceUpdate:
		in.handleInterfaceUpdate(payload)
	case ibus.InterfaceDelete:
		in.handleInterfaceDelete(payload)
	case ibus.BfdSessionStateUpd:
		in.handleBfdStateUpd(payload)
	}
}

// handleInterfaceUpdate tears the link down when the ibus reports it
// loopback or no longer operative. Bringing a link up is AttachInterface's
// job: opening the raw IP socket needs the interface's configured OSPF
// bind address, which InterfaceUpdate alone does not carry.
func (in *Instance) handleInterfaceUpdate(upd ibus.InterfaceUpdate) {
	if upd.Flags.Loopback || !upd.Flags.Operative {
		in.handleInterfaceDelete(ibus.InterfaceDelete{Name: upd.Name})
	}
}

func (in *Instance) handleInterfaceDelete(del ibus.InterfaceDelete) {
	in.mu.Lock()
	l, ok := in.links[del.Name]
	if ok {
		delete(in.links, del.Name)
	}
	in.mu.Unlock()

	if ok && l.cancel != nil {
		l.cancel()
	}
}

// AttachInterface opens a transport on ifName/addr and starts its receive
// loop. It is the operator-facing counterpart to the automatic
// handleInterfaceUpdate path: the owner of the Instance calls it once per
// configured OSPF interface after the ibus has reported the interface operative, since
// opening a raw IP socket needs the bind address the config (not the bare
// ibus InterfaceUpdate) supplies.
func (in *Instance) AttachInterface(addr netip.Addr, ifName string, ifIndex int, asDR bool) error {
	t, err := NewTransport(addr, ifName, asDR, in.logger)
	if err != nil {
		return fmt.Errorf("attach ospf interface %s: %w", ifName, err)
	}

	runCtx, cancel := context.WithCancel(in.ctx)

	in.mu.Lock()
	in.links[ifName] = &link{
		ifName:    ifName,
		addr:      addr,
		ifIndex:   ifIndex,
		transport: t,
		cancel:    cancel,
		neighbors: make(map[uint32]*neighbor),
	}
	in.mu.Unlock()

	go t.Run(runCtx, in.post)
	in.logger.Info("ospf interface attached", slog.String("interface", ifName), slog.String("addr", addr.String()))
	return nil
}

func (in *Instance) handleBfdStateUpd(upd ibus.BfdSessionStateUpd) {
	in.mu.Lock()
	defer in.mu.Unlock()

	l, ok := in.links[upd.Key.IfName]
	if !ok {
		return
	}
	for rid, n := range l.neighbors {
		if n.addr != upd.Key.PeerAddr {
			continue
		}
		if upd.State == "Down" {
			in.killNeighborLocked(l, rid, EventLLDown)
		}
	}
}

// ProcessProtocolMsg implements instance.Protocol: routes a decoded packet
// to its neighbor FSM.
func (in *Instance) ProcessProtocolMsg(msg Input) {
	switch msg.Header.Type {
	case TypeHello:
		in.handleHello(msg)
	default:
		in.logger.Debug("unhandled ospf packet type", slog.String("type", msg.Header.Type.String()))
	}
}

func (in *Instance) handleHello(msg Input) {
	hello, err := DecodeHello(msg.Body)
	if err != nil {
		in.logger.Debug("invalid hello", slog.String("error", err.Error()))
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	l, ok := in.links[msg.IfName]
	if !ok {
		return
	}

	n, exists := l.neighbors[msg.Header.RouterID]
	if !exists {
		n = &neighbor{routerID: msg.Header.RouterID, addr: msg.SrcAddr, state: StateDown}
		l.neighbors[msg.Header.RouterID] = n
	}

	event := EventHelloReceived
	in.applyLocked(l, n, event)

	if seenSelf(hello.Neighbors, in.routerID) {
		in.applyLocked(l, n, Event2WayReceived)
	} else if n.state > StateInit {
		in.applyLocked(l, n, Event1WayReceived)
	}
}

func (in *Instance) applyLocked(l *link, n *neighbor, event Event) {
	result, err := ApplyEvent(n.state, event)
	if err != nil {
		in.logger.Debug("ospf fsm programming fault",
			slog.String("interface", l.ifName),
			slog.Uint64("neighbor", uint64(n.routerID)),
			slog.String("state", n.state.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if result.Changed {
		in.logger.Info("ospf neighbor state change",
			slog.String("interface", l.ifName),
			slog.Uint64("neighbor", uint64(n.routerID)),
			slog.String("from", result.OldState.String()),
			slog.String("to", result.NewState.String()),
		)
	}
	n.state = result.NewState
	// Actions beyond the state transition itself (ActionSendDD, ActionElectDR,
	// ActionOriginateLSAs, ...) are executed by the adjacency-formation and
	// flooding paths layered on top of this neighbor table; this handler
	// owns only the Hello-driven subset of the FSM.
}

func (in *Instance) killNeighborLocked(l *link, routerID uint32, event Event) {
	n, ok := l.neighbors[routerID]
	if !ok {
		return
	}
	in.applyLocked(l, n, event)
}

func seenSelf(neighbors []uint32, routerID uint32) bool {
	for _, rid := range neighbors {
		if rid == routerID {
			return true
		}
	}
	return false
}

// RequestBfd asks the bus to stand up a BFD session to peer on ifName, so
// a fast link failure collapses the adjacency via handleBfdStateUpd rather
// than waiting out RouterDeadInterval, per spec.md §4.7.
func (in *Instance) RequestBfd(localAddr, peerAddr netip.Addr, ifName string) {
	in.bus.Publish(ibus.Message{
		Kind: ibus.KindBfdSession,
		Payload: ibus.BfdSessionReg{
			Key: ibus.BfdSessionKey{
				PeerAddr:  peerAddr,
				LocalAddr: localAddr,
				IfName:    ifName,
			},
			ClientID: in.name,
		},
	})
}

// ReleaseBfd cancels a prior RequestBfd registration.
func (in *Instance) ReleaseBfd(localAddr, peerAddr netip.Addr, ifName string) {
	in.bus.Publish(ibus.Message{
		Kind: ibus.KindBfdSession,
		Payload: ibus.BfdSessionUnreg{
			Key: ibus.BfdSessionKey{
				PeerAddr:  peerAddr,
				LocalAddr: localAddr,
				IfName:    ifName,
			},
			ClientID: in.name,
		},
	})
}
