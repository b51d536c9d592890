package network

import (
	"errors"
	"fmt"
	"sync"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// errAlreadyRegistered is returned by RegisterHandler when a command
// already has a handler bound.
var errAlreadyRegistered = errors.New("network: handler already registered for command")

// HandlerFunc processes one message from one peer. It always runs on the
// dispatcher's owning reactor goroutine; handlers must not block on
// network I/O themselves.
type HandlerFunc func(peer *p2p.Peer, msg wire.Message)

// Dispatcher is the command -> handler registry (spec.md C6). Registration
// happens once at startup; Dispatch is called from the reactor loop for
// every inbound message.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      log.Logger
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		log:      log.New("module", "dispatcher"),
	}
}

// RegisterHandler binds fn to command. It is an error to register the same
// command twice.
func (d *Dispatcher) RegisterHandler(command string, fn HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[command]; exists {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, command)
	}
	d.handlers[command] = fn
	return nil
}

// Dispatch looks up and invokes the handler for msg.Command(), gating on
// the peer's handshake state: every command except VERSION and VERACK
// requires the peer to be StateReady (spec.md C3), re-checked here on
// every single dispatch rather than trusted from the peer's own receive
// loop, since messages can also reach handlers via re-entrant relay paths.
// A pre-READY protocol message is not scored -- it is an immediate
// disconnect, per spec.md C3/C9 ("pre-READY protocol messages cause
// immediate disconnect"), not a gradual misbehavior accumulation.
// A handler panic is recovered and the peer is disconnected, rather than
// taking down the reactor.
func (d *Dispatcher) Dispatch(peer *p2p.Peer, msg wire.Message) {
	cmd := msg.Command()
	if cmd != wire.CmdVersion && cmd != wire.CmdVerack && !peer.IsReady() {
		d.log.Debug("disconnecting peer for protocol message before handshake complete", "peer", peer.ID, "cmd", cmd)
		peer.Disconnect()
		return
	}

	d.mu.RLock()
	fn, ok := d.handlers[cmd]
	d.mu.RUnlock()
	if !ok {
		d.log.Debug("no handler registered for command", "cmd", cmd)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", "peer", peer.ID, "cmd", cmd, "recover", r)
			peer.Disconnect()
		}
	}()
	fn(peer, msg)
}
