package signaling

import (
	"context"

	"go.uber.org/zap"
)

const defaultEventBuffer = 1024

type eventKind int

const (
	eventMessage eventKind = iota
	eventDisconnect
)

type event struct {
	kind eventKind
	peer *Peer
	msg  Inbound
}

// Hub runs every relay operation on one goroutine, so a message is fully handled
// (registry lookup through to the last send) before the next one starts. Events from one
// connection are handled in the order they were submitted.
type Hub struct {
	relay  *Relay
	events chan event
	done   chan struct{}
	logger *zap.Logger
}

// NewHub creates a hub around relay. Call Run to start processing.
func NewHub(relay *Relay, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		relay:  relay,
		events: make(chan event, defaultEventBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes events until ctx is cancelled. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("signaling hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("signaling hub stopped")
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// Done is closed once Run has returned and no event is being handled.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Submit queues a decoded message from peer. It returns false once the hub has stopped.
func (h *Hub) Submit(peer *Peer, msg Inbound) bool {
	return h.enqueue(event{kind: eventMessage, peer: peer, msg: msg})
}

// Disconnect queues the leave sequence for peer.
func (h *Hub) Disconnect(peer *Peer) bool {
	return h.enqueue(event{kind: eventDisconnect, peer: peer})
}

func (h *Hub) enqueue(ev event) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("signaling event panicked", zap.Any("panic", rec), zap.String("conn_id", ev.peer.ID()))
		}
	}()
	switch ev.kind {
	case eventMessage:
		h.relay.Dispatch(ev.peer, ev.msg)
	case eventDisconnect:
		h.relay.Leave(ev.peer)
	}
}
