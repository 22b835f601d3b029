// Package ibus implements the internal message bus (C8): a typed
// publish/subscribe channel carrying interface, address, route, nexthop,
// keychain, and BFD-session events between protocol instances and the
// kernel-facing router.
//
// The dispatch shape is grounded on bfd.Manager.RunDispatch: a central
// fan-out loop reads from one raw input channel and forwards to per-
// subscriber bounded channels, dropping and counting on a full subscriber
// queue rather than blocking the publisher.
package ibus

import (
	"context"
	"log/slog"
	"sync"
)

// Kind identifies a message's topic for subscription filtering.
type Kind uint8

const (
	KindInterface Kind = iota
	KindInterfaceAddress
	KindRoute
	KindRouteRedistribute
	KindNexthop
	KindKeychain
	KindBfdSession
	KindPolicy
	KindLabelOp
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "Interface"
	case KindInterfaceAddress:
		return "InterfaceAddress"
	case KindRoute:
		return "Route"
	case KindRouteRedistribute:
		return "RouteRedistribute"
	case KindNexthop:
		return "Nexthop"
	case KindKeychain:
		return "Keychain"
	case KindBfdSession:
		return "BfdSession"
	case KindPolicy:
		return "Policy"
	case KindLabelOp:
		return "LabelOp"
	default:
		return "Unknown"
	}
}

// Message is a single ibus event. Payload holds one of the Kind-specific
// structs defined in messages.go.
type Message struct {
	Kind    Kind
	Payload any
}

// SubscriberID identifies a subscription returned by Subscribe, used to
// Unsubscribe later.
type SubscriberID uint64

// subscriberQueueSize bounds each subscriber's channel. Sized generously
// relative to expected per-tick event volume (interface/route churn is
// bursty but not continuous); a lagging subscriber drops the oldest message
// rather than stalling the publisher, same trade-off bfd.Manager makes for
// publicNotifyCh.
const subscriberQueueSize = 256

// Filter restricts which kinds a subscriber receives. A nil or empty Kinds
// slice means "all kinds".
type Filter struct {
	Kinds []Kind
}

func (f Filter) matches(k Kind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, want := range f.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

type subscriber struct {
	id     SubscriberID
	filter Filter
	ch     chan Message
	dropped uint64
}

// Bus is a typed pub/sub bus. Publishers never block: Publish enqueues onto
// an internal unbounded-in-practice raw channel and a single dispatch
// goroutine fans out to subscribers, exactly mirroring
// bfd.Manager.RunDispatch's rawNotifyCh -> publicNotifyCh shape generalized
// to N subscribers instead of one.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*subscriber
	nextID      SubscriberID

	raw    chan Message
	logger *slog.Logger
}

// New creates a Bus. The logger is used to report dropped messages on
// lagging subscribers.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[SubscriberID]*subscriber),
		raw:         make(chan Message, subscriberQueueSize),
		logger:      logger.With(slog.String("component", "ibus")),
	}
}

// Publish enqueues a message for dispatch. Never blocks the caller for long:
// the raw channel is sized for the expected fan-in burst; a full raw
// channel indicates the dispatch goroutine is not running, which is a
// programming error in the caller (Run must be started before Publish).
func (b *Bus) Publish(msg Message) {
	b.raw <- msg
}

// Subscribe registers a new subscriber matching filter and returns its
// channel and ID. Callers receiving from the returned channel must keep up
// or expect drops; Dump can be used to resynchronize after a gap.
func (b *Bus) Subscribe(filter Filter) (SubscriberID, <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:     id,
		filter: filter,
		ch:     make(chan Message, subscriberQueueSize),
	}
	b.subscribers[id] = sub

	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(sub.ch)
}

// Dropped returns the number of messages dropped for a lagging subscriber
// since Subscribe, for the dropped-message counter spec.md §4.6 requires.
func (b *Bus) Dropped(id SubscriberID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return 0
	}
	return sub.dropped
}

// Run drives the dispatch loop until ctx is cancelled. Exactly one goroutine
// must run this for the Bus to deliver anything (Publish alone only fills
// the raw channel).
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.raw:
			b.dispatch(msg)
		}
	}
}

func (b *Bus) dispatch(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.filter.matches(msg.Kind) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Queue full: evict the oldest queued message to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
			sub.dropped++
			b.logger.Warn("ibus subscriber queue full, dropping message",
				slog.Uint64("subscriber_id", uint64(sub.id)),
				slog.String("kind", msg.Kind.String()),
				slog.Uint64("dropped_total", sub.dropped),
			)
		}
	}
}
