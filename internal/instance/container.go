// Package instance implements the protocol-instance container (C7): the
// uniform lifecycle, ibus subscription, and task-supervision model every
// protocol plugs into, generalizing the teacher's Manager+session goroutine
// supervision pattern (bfd.Manager owning a dispatch loop and per-session
// goroutines) into one generic Container per protocol.
package instance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holo-suite/holod/internal/ibus"
	"github.com/holo-suite/holod/internal/northbound"
)

// Protocol is anything a Container can supervise: a type implementing the
// instance contract from spec.md §2 ("init, process_ibus_msg,
// process_protocol_msg, and a pair of input/output channel sets").
// In is the protocol's own inbound message type (decoded packets, timer
// fires, etc); Container is intentionally not generic over an output type
// since every protocol already owns its own outbound transport (a netio
// sender, a TCP session writer) and posts to it directly from
// ProcessProtocolMsg/ProcessIbusMsg rather than through the container.
type Protocol[In any] interface {
	// Name identifies the instance for logging and northbound registration.
	Name() string
	// Subscription returns the ibus filter this instance wants to receive,
	// evaluated once at container start (spec.md §4.10 step 4).
	Subscription() ibus.Filter
	// ProcessIbusMsg handles one bus message. Synchronous: per spec.md §9,
	// handlers never suspend; they enqueue outbound work and return.
	ProcessIbusMsg(msg ibus.Message)
	// ProcessProtocolMsg handles one protocol-specific input (a decoded
	// packet, a timer fire posted back onto the instance's own channel).
	ProcessProtocolMsg(msg In)
	// Callbacks returns the northbound read/write hooks this instance
	// exposes (spec.md §4.10 step 5).
	Callbacks() northbound.Callbacks
}

// Container supervises one Protocol instance: it owns the instance's input
// channel, subscribes it to the ibus, and runs the single-threaded main
// loop spec.md §5 requires (instance state mutated only from this one
// goroutine).
type Container[In any] struct {
	proto  Protocol[In]
	bus    *ibus.Bus
	logger *slog.Logger

	input chan In

	// FatalHook is called if the main loop panics while processing a
	// message, after logging, mirroring "Panics in any task abort the
	// process" (spec.md §7). Defaults to nil, in which case the panic is
	// simply re-raised after logging (the caller's recover, if any, decides
	// whether that aborts the process).
	FatalHook func(instance string, recovered any)
}

// inputQueueSize bounds the instance's protocol-input channel. Sized well
// above a single socket's per-tick packet burst; a full channel here means
// the instance's main loop is wedged, which is itself the fatal condition
// spec.md §4.2 describes for the read-loop-to-instance handoff.
const inputQueueSize = 1024

// New creates a Container for proto, wired to bus.
func New[In any](proto Protocol[In], bus *ibus.Bus, logger *slog.Logger) *Container[In] {
	return &Container[In]{
		proto:  proto,
		bus:    bus,
		logger: logger.With(slog.String("instance", proto.Name())),
		input:  make(chan In, inputQueueSize),
	}
}

// Post delivers a protocol-specific message to the instance's input
// channel. Used by the instance's own network I/O and timer tasks.
func (c *Container[In]) Post(msg In) {
	c.input <- msg
}

// Northbound returns the instance's registered callback set, for wiring
// into a northbound.Registry.
func (c *Container[In]) Northbound() northbound.Callbacks {
	return c.proto.Callbacks()
}

// Run subscribes the instance to its declared ibus filter and drives the
// main dispatch loop until ctx is cancelled (spec.md §4.10 steps 2-4).
func (c *Container[In]) Run(ctx context.Context) {
	subID, ibusCh := c.bus.Subscribe(c.proto.Subscription())
	defer c.bus.Unsubscribe(subID)

	c.logger.Info("instance started")
	defer c.logger.Info("instance stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ibusCh:
			c.dispatch(func() { c.proto.ProcessIbusMsg(msg) })
		case msg := <-c.input:
			c.dispatch(func() { c.proto.ProcessProtocolMsg(msg) })
		}
	}
}

// dispatch runs fn with a recover boundary, logging and invoking FatalHook
// on panic rather than letting one bad message tear down the whole
// container goroutine silently.
func (c *Container[In]) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("instance handler panicked",
				slog.String("recovered", stringify(r)),
			)
			if c.FatalHook != nil {
				c.FatalHook(c.proto.Name(), r)
			} else {
				panic(r)
			}
		}
	}()
	fn()
}

func stringify(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}
