// Package ldp also supplies the instance.Protocol[Input] adapter (C2/C7):
// discovery-driven neighbor tracking and the northbound surface layered on
// top of the pure session FSM and PDU codec above.
package ldp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/holo-suite/holod/internal/ibus"
	"github.com/holo-suite/holod/internal/northbound"
)

// Input is the instance's protocol-specific message type: one decoded LDP
// message arriving on a discovery transport (Hello) or, once a session's
// TCP connection is established, posted in by the session reader via Post.
type Input struct {
	IfName        string
	SrcAddr       netip.Addr
	PDUHeader     PDUHeader
	MessageHeader MessageHeader
	Body          []byte
}

// peer is one LSR discovered (or session-established) via Hello, keyed by
// LSR ID within an interface.
type peer struct {
	lsrID netip.Addr
	addr  netip.Addr
	state State
}

type discoveryLink struct {
	ifName    string
	transport *Transport
	cancel    context.CancelFunc
	peers     map[netip.Addr]*peer
}

// Instance implements instance.Protocol[Input] for one LDP process.
type Instance struct {
	name    string
	lsrID   netip.Addr
	logger  *slog.Logger
	bus     *ibus.Bus
	ctx     context.Context //nolint:containedctx // starts/stops per-interface discovery transports from async ibus handlers.
	binding *Bindings

	mu    sync.Mutex
	links map[string]*discoveryLink

	post func(Input)
}

// NewInstance creates an LDP process identified by lsrID, bound to bus.
// binding may be nil if FEC-to-label advertisement is not wired yet.
func NewInstance(ctx context.Context, name string, lsrID netip.Addr, bus *ibus.Bus, binding *Bindings, post func(Input), logger *slog.Logger) *Instance {
	return &Instance{
		name:    name,
		lsrID:   lsrID,
		logger:  logger.With(slog.String("instance", name)),
		bus:     bus,
		ctx:     ctx,
		binding: binding,
		links:   make(map[string]*discoveryLink),
		post:    post,
	}
}

// Name implements instance.Protocol.
func (in *Instance) Name() string { return in.name }

// Bindings returns the instance's FEC-to-label table, for wiring to a RIB
// route-add/withdraw subscriber outside the discovery path this file owns.
func (in *Instance) Bindings() *Bindings { return in.binding }

// Subscription implements instance.Protocol.
func (in *Instance) Subscription() ibus.Filter {
	return ibus.Filter{Kinds: []ibus.Kind{ibus.KindInterface}}
}

// Callbacks implements instance.Protocol.
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
		for lsr, p := range l.peers {
			tree[fmt.Sprintf("/ldp/interface/%s/peer/%s/state", ifName, lsr)] = p.state.String()
		}
	}
	return tree
}

// ProcessIbusMsg implements instance.Protocol.
func (in *Instance) ProcessIbusMsg(msg ibus.Message) {
	if del, ok := msg.Payload.(ibus.InterfaceDelete); ok {
		in.detachLocked(del.Name)
	}
}

func (in *Instance) detachLocked(ifName string) {
	in.mu.Lock()
	l, ok := in.links[ifName]
	if ok {
		delete(in.links, ifName)
	}
	in.mu.Unlock()

	if ok && l.cancel != nil {
		l.cancel()
	}
}

// AttachInterface opens a discovery transport on ifName/addr and starts its
// receive loop, mirroring ospf.Instance.AttachInterface.
func (in *Instance) AttachInterface(addr netip.Addr, ifName string) error {
	t, err := NewTransport(addr, ifName, in.logger)
	if err != nil {
		return fmt.Errorf("attach ldp interface %s: %w", ifName, err)
	}

	runCtx, cancel := context.WithCancel(in.ctx)

	in.mu.Lock()
	in.links[ifName] = &discoveryLink{
		ifName:    ifName,
		transport: t,
		cancel:    cancel,
		peers:     make(map[netip.Addr]*peer),
	}
	in.mu.Unlock()

	go t.Run(runCtx, in.post)
	in.logger.Info("ldp interface attached", slog.String("interface", ifName), slog.String("addr", addr.String()))
	return nil
}

// ProcessProtocolMsg implements instance.Protocol.
func (in *Instance) ProcessProtocolMsg(msg Input) {
	switch msg.MessageHeader.Type {
	case MsgHello:
		in.handleHello(msg)
	default:
		in.logger.Debug("unhandled ldp message type outside a session", slog.Uint64("type", uint64(msg.MessageHeader.Type)))
	}
}

func (in *Instance) handleHello(msg Input) {
	in.mu.Lock()
	defer in.mu.Unlock()

	l, ok := in.links[msg.IfName]
	if !ok {
		return
	}

	p, exists := l.peers[msg.SrcAddr]
	if !exists {
		p = &peer{lsrID: msg.SrcAddr, addr: msg.SrcAddr, state: StateNonExistent}
		l.peers[msg.SrcAddr] = p
		in.logger.Info("ldp neighbor discovered", slog.String("interface", msg.IfName), slog.String("peer", msg.SrcAddr.String()))
	}
	// A session's TCP establishment (EventTCPConnected) and its subsequent
	// Init/Keepalive exchange are driven by the session layer once it dials
	// the discovered peer's transport address; discovery only maintains the
	// peer's presence, matching RFC 5036 Section 2.4's separation between
	// the Hello adjacency and the session FSM.
	p.addr = msg.SrcAddr
}

// MsgHello is the Link Hello message type (RFC 5036 Section 3.5.2); kept
// local to this file since it is discovery-specific and packet.go's message
// type list only covers session-carried messages.
const MsgHello MessageType = 0x0100
