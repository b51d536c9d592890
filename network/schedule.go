package network

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/unicity-labs/headernet/p2p"
)

// schedule runs the periodic background tasks: connection maintenance,
// stall detection, outbound connect attempts, and occasional feeler
// connections. It runs on its own goroutine since outbound dialing blocks,
// but every read or write of peer/addr/sync state it needs is posted
// through Manager.post -- only the address selection and the blocking dial
// itself straddle the reactor boundary, and the dial happens strictly
// after the posted decision returns, never concurrently with it.
func (m *Manager) schedule(ctx context.Context) {
	connectTicker := time.NewTicker(connectAttemptInterval)
	defer connectTicker.Stop()
	maintenanceTicker := time.NewTicker(maintenanceInterval)
	defer maintenanceTicker.Stop()
	flushTicker := time.NewTicker(invFlushInterval)
	defer flushTicker.Stop()

	feelerTimer := time.NewTimer(nextFeelerDelay(m.cfg.FeelerMaxDelayMultiplier))
	defer feelerTimer.Stop()

	for {
		select {
		case <-connectTicker.C:
			m.tryConnectOutbound(ctx)

		case <-maintenanceTicker.C:
			m.runMaintenance()

		case <-flushTicker.C:
			m.post(func() { m.sync.relay.FlushBlockAnnouncements(m.peers.Get) })

		case <-feelerTimer.C:
			m.tryFeelerConnect(ctx)
			feelerTimer.Reset(nextFeelerDelay(m.cfg.FeelerMaxDelayMultiplier))

		case <-m.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nextFeelerDelay draws from an exponential distribution with mean
// feelerBaseInterval, capped at maxMultiplier*feelerBaseInterval (a
// maxMultiplier <= 0 caps it at feelerBaseInterval), so feeler connections don't
// fire in lockstep across many nodes (the original implementation's
// "Poisson-ish" feeler cadence).
func nextFeelerDelay(maxMultiplier int) time.Duration {
	if maxMultiplier <= 0 {
		maxMultiplier = 1
	}
	lambda := 1.0
	delay := -math.Log(1-rand.Float64()) / lambda
	d := time.Duration(delay * float64(feelerBaseInterval))
	ceiling := time.Duration(maxMultiplier) * feelerBaseInterval
	if d > ceiling {
		d = ceiling
	}
	if d <= 0 {
		d = feelerBaseInterval
	}
	return d
}

// pickOutboundTarget posts the capacity check and address selection onto
// the reactor, returning the chosen address (or "" if none/at capacity).
func (m *Manager) pickOutboundTarget(atCapacity func() bool) string {
	resCh := make(chan string, 1)
	m.post(func() {
		if atCapacity != nil && atCapacity() {
			resCh <- ""
			return
		}
		excluded := make(map[string]struct{})
		for _, p := range m.peers.All() {
			excluded[p.Addr.String()] = struct{}{}
		}
		resCh <- m.addrs.PickOutbound(excluded)
	})
	select {
	case addr := <-resCh:
		return addr
	case <-m.quit:
		return ""
	}
}

func (m *Manager) tryConnectOutbound(ctx context.Context) {
	addr := m.pickOutboundTarget(func() bool {
		return m.peers.Count() >= m.cfg.MaxOutbound+m.cfg.MaxInbound
	})
	if addr == "" {
		return
	}
	if err := m.DialOutbound(ctx, addr, p2p.ConnTypeOutbound, p2p.PermissionNone); err != nil {
		m.log.Debug("outbound connect failed", "addr", addr, "err", err)
	}
}

func (m *Manager) tryFeelerConnect(ctx context.Context) {
	addr := m.pickOutboundTarget(nil)
	if addr == "" {
		return
	}
	if err := m.DialOutbound(ctx, addr, p2p.ConnTypeFeeler, p2p.PermissionNone); err != nil {
		m.log.Debug("feeler connect failed", "addr", addr, "err", err)
	}
}

// runMaintenance checks sync-peer liveness and persists the current
// anchor set. The liveness check and peer-set reads happen on the reactor
// goroutine via post; the anchors file write happens here since it's
// blocking disk I/O, not shared in-memory state.
func (m *Manager) runMaintenance() {
	anchorsCh := make(chan []Anchor, 1)
	m.post(func() {
		if m.sync.headers.IsStalled() {
			id := m.sync.headers.SyncPeerID()
			if peer := m.peers.Get(id); peer != nil {
				m.log.Warn("sync peer stalled, disconnecting", "peer", id)
				peer.Disconnect()
			}
			m.sync.headers.ReleaseSyncPeer(id)
		}

		var candidates []*p2p.Peer
		for _, p := range m.peers.All() {
			if p.IsReady() {
				candidates = append(candidates, p)
			}
		}
		m.sync.headers.SelectSyncPeer(candidates, func(id int64) bool {
			return m.peers.Get(id) != nil
		})

		var anchors []Anchor
		for _, p := range m.peers.All() {
			if p.ConnType == p2p.ConnTypeOutbound && len(anchors) < maxAnchors {
				anchors = append(anchors, Anchor{Addr: p.Addr.String(), Services: uint64(p.Services)})
			}
		}
		anchorsCh <- anchors
	})

	select {
	case anchors := <-anchorsCh:
		if err := m.anchors.Save(anchors); err != nil {
			m.log.Debug("failed saving anchors", "err", err)
		}
	case <-m.quit:
	}
}
