package network

import (
	"context"
	"time"
)

// natRefreshInterval is the fixed cadence at which the NAT manager posts a
// refresh. Actual port-mapping (UPnP/NAT-PMP) is out of scope (spec.md §1,
// §5); only the scheduling discipline is implemented here, grounded on the
// original implementation's periodic NAT refresh task.
const natRefreshInterval = 30 * time.Minute

// natRefresher is a background goroutine that fires every
// natRefreshInterval. It is a no-op by default -- enabling NAT in config
// only turns on the scheduling, not a concrete port-mapping
// implementation, which this module does not provide.
func (m *Manager) natRefresher(ctx context.Context) {
	ticker := time.NewTicker(natRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.log.Debug("nat refresh tick")
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}
