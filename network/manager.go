package network

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unicity-labs/headernet/chain"
	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// Manager is the top-level orchestrator (spec.md C9): it owns the
// transport, the peer lifecycle/address/ban/anchor managers, the
// dispatcher, and the sync coordinator, and serializes all of their state
// mutation onto a single reactor goroutine. register/unregister/inbound
// feed peer lifecycle events to loop(); tasks is the general-purpose hop
// everything else uses -- every connection's OnMessage callback, and every
// periodic job in schedule(), posts a closure through Manager.post rather
// than touching peers/addrs/sync/bans directly from its own goroutine, so
// loop() is the only place any of that state is ever mutated. Only
// genuinely blocking I/O (TCP dial, anchor-file writes) happens off the
// reactor, as a naked goroutine that posts its result back in.
type Manager struct {
	cfg   Config
	chain chain.Reader
	log   log.Logger

	transport *p2p.Transport
	peers     *PeerLifecycleManager
	bans      *BanStore
	addrs     *AddrManager
	anchors   *AnchorStore
	dispatch  *Dispatcher
	sync      *syncCoordinator

	register   chan *p2p.Peer
	unregister chan unregisterEvent
	inbound    chan net.Conn
	tasks      chan func()
	quit       chan struct{}
	wg         sync.WaitGroup
}

type unregisterEvent struct {
	id  int64
	err error
}

// NewManager wires every network-core component together. reader is the
// external chainstate collaborator (spec.md §6); it is never nil.
func NewManager(cfg Config, reader chain.Reader) *Manager {
	nonce := randomNonce(cfg.TestNonce)
	bans := NewBanStore()
	m := &Manager{
		cfg:        cfg,
		chain:      reader,
		log:        log.New("module", "manager"),
		peers:      NewPeerLifecycleManager(cfg.MaxOutbound, cfg.MaxInbound, nonce, bans),
		bans:       bans,
		addrs:      NewAddrManager(),
		anchors:    NewAnchorStore(cfg.DataDir),
		dispatch:   NewDispatcher(),
		sync:       newSyncCoordinator(reader),
		register:   make(chan *p2p.Peer, 16),
		unregister: make(chan unregisterEvent, 16),
		inbound:    make(chan net.Conn, 16),
		tasks:      make(chan func(), 64),
		quit:       make(chan struct{}),
	}
	m.registerHandlers()
	reader.OnBlockConnected(m.sync.onBlockConnected(m.peers.All))
	return m
}

func randomNonce(override *uint64) uint64 {
	if override != nil {
		return *override
	}
	return rand.Uint64()
}

func (m *Manager) registerHandlers() {
	m.dispatch.RegisterHandler(wire.CmdVersion, m.handleVersion)
	m.dispatch.RegisterHandler(wire.CmdVerack, m.handleVerack)
	m.dispatch.RegisterHandler(wire.CmdPing, m.handlePing)
	m.dispatch.RegisterHandler(wire.CmdPong, m.handlePong)
	m.dispatch.RegisterHandler(wire.CmdGetAddr, m.handleGetAddr)
	m.dispatch.RegisterHandler(wire.CmdAddr, m.handleAddr)
	m.dispatch.RegisterHandler(wire.CmdInv, m.handleInv)
	m.dispatch.RegisterHandler(wire.CmdGetHeaders, m.handleGetHeaders)
	m.dispatch.RegisterHandler(wire.CmdHeaders, m.handleHeaders)
}

// Start binds the listener (if enabled), starts the reactor loop and the
// periodic-task scheduler, dials any persisted anchors, and returns once
// startup has completed.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.ListenEnabled {
		m.transport = p2p.NewTransport(p2p.TransportConfig{
			ListenAddr: net.JoinHostPort(m.cfg.ListenAddr, portString(m.cfg.ListenPort)),
			Magic:      m.cfg.NetworkMagic,
		})
		m.transport.OnAccept = func(nc net.Conn) { m.inbound <- nc }
		if err := m.transport.Listen(); err != nil {
			return err
		}
	}

	m.wg.Add(2)
	go func() { defer m.wg.Done(); m.loop(ctx) }()
	go func() { defer m.wg.Done(); m.schedule(ctx) }()

	if m.cfg.EnableNAT {
		m.wg.Add(1)
		go func() { defer m.wg.Done(); m.natRefresher(ctx) }()
	}

	m.dialAnchors(ctx)

	m.log.Info("network core started", "listen", m.cfg.ListenEnabled)
	return nil
}

// dialAnchors reconnects to persisted anchor addresses (spec.md §4.4),
// granting each one PermissionNoBan: an anchor is a peer we ourselves chose
// to remember across restarts specifically to resist eclipse, so it must
// not be churned by the same discourage/disconnect policy that applies to
// freshly discovered peers. Dialing happens off the reactor goroutine;
// admission, like every other connection, is funneled through m.register.
func (m *Manager) dialAnchors(ctx context.Context) {
	anchors, err := m.anchors.Load()
	if err != nil {
		m.log.Debug("failed loading anchors", "err", err)
		return
	}
	for _, a := range anchors {
		go func(addr string) {
			if err := m.DialOutbound(ctx, addr, p2p.ConnTypeOutbound, p2p.PermissionNoBan); err != nil {
				m.log.Debug("anchor dial failed", "addr", addr, "err", err)
			}
		}(a.Addr)
	}
}

// post hands fn to the reactor goroutine for execution. Callers outside
// loop() -- connection callbacks, the scheduler -- must never touch
// peers/addrs/bans/sync/dispatch directly; they post a closure instead.
// fn must not block.
func (m *Manager) post(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.quit:
	}
}

// misbehave applies a misbehavior penalty and, if the peer has now crossed
// discourageThreshold, discourages its IP and disconnects it -- unless the
// peer holds PermissionNoBan, in which case the score is still recorded but
// no action is taken (spec.md §3/§4.3/§7). Must be called from the reactor
// goroutine, since it touches m.bans.
func (m *Manager) misbehave(peer *p2p.Peer, delta int, reason string) {
	if !peer.Misbehave(delta, reason) {
		return
	}
	if peer.NoBan() {
		return
	}
	m.bans.Discourage(hostOf(peer.Addr), reason)
	peer.Disconnect()
}

// Stop signals shutdown, closes the listener, and waits for the reactor,
// scheduler and NAT goroutines to exit. The errgroup only wraps that wait,
// so Stop always returns nil.
func (m *Manager) Stop() error {
	close(m.quit)
	if m.transport != nil {
		m.transport.Close()
	}
	var g errgroup.Group
	g.Go(func() error {
		m.wg.Wait()
		return nil
	})
	return g.Wait()
}

// loop is the single reactor goroutine: every piece of shared state this
// package touches is mutated only here or inside callbacks the registered
// handlers invoke synchronously from here.
func (m *Manager) loop(ctx context.Context) {
	for {
		select {
		case nc := <-m.inbound:
			m.acceptInbound(nc)

		case fn := <-m.tasks:
			fn()

		case peer := <-m.register:
			if err := m.peers.Admit(peer); err != nil {
				m.log.Debug("rejecting peer admission", "peer", peer.ID, "err", err)
				peer.Disconnect()
				continue
			}
			m.sendVersion(peer)

		case ev := <-m.unregister:
			m.peers.Remove(ev.id)
			m.sync.forgetPeer(ev.id)
			m.addrs.ForgetPeer(ev.id)

		case <-m.quit:
			for _, p := range m.peers.All() {
				p.Disconnect()
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) acceptInbound(nc net.Conn) {
	id := m.peers.AllocateID()
	peer := p2p.NewPeer(id, nc.RemoteAddr(), nil, p2p.ConnTypeInbound)
	conn := p2p.NewConn(nc, m.cfg.NetworkMagic, m.callbacksFor(id, peer))
	peer.AttachConn(conn)
	m.register <- peer
}

// DialOutbound opens an outbound connection of the given type (Outbound,
// Manual, or Feeler), grants it perms, and once connected feeds it through
// the same admission path as inbound connections. The dial itself blocks
// the calling goroutine, which must not be the reactor goroutine.
func (m *Manager) DialOutbound(ctx context.Context, addr string, connType p2p.ConnType, perms p2p.NetPermissionFlags) error {
	nc, err := p2p.Dial(ctx, addr)
	if err != nil {
		return err
	}
	id := m.peers.AllocateID()
	peer := p2p.NewPeer(id, nc.RemoteAddr(), nil, connType)
	peer.SetPermissions(perms)
	conn := p2p.NewConn(nc, m.cfg.NetworkMagic, m.callbacksFor(id, peer))
	peer.AttachConn(conn)
	m.register <- peer
	return nil
}

// callbacksFor builds the Conn callbacks shared by inbound and outbound
// connections: every decoded message is posted onto the reactor goroutine
// rather than dispatched from the conn's own read-loop goroutine, and done
// is only called once Dispatch has returned, so the conn's receive-flood
// accounting reflects actual processing completion, not just I/O.
func (m *Manager) callbacksFor(id int64, peer *p2p.Peer) p2p.Callbacks {
	return p2p.Callbacks{
		OnMessage: func(msg wire.Message, done func()) {
			m.post(func() {
				peer.Touch()
				m.dispatch.Dispatch(peer, msg)
				done()
			})
		},
		OnDisconnect: func(err error) {
			m.unregister <- unregisterEvent{id: id, err: err}
		},
	}
}

func (m *Manager) sendVersion(peer *p2p.Peer) {
	v := &wire.VersionMessage{
		Version:  wire.ProtocolVersion,
		Services: wire.SFNodeNetwork,
		Timestamp: time.Now().Unix(),
		Nonce:    m.peers.Nonce(),
		UserAgent: "/headernet:0.1.0/",
		StartHeight: m.chain.Height(),
	}
	peer.Send(v)
	peer.MarkVersionSent()
}

func portString(p int) string {
	return strconv.Itoa(p)
}
