// Package quota implements PicoFS's admission-control meter (spec.md §4.5):
// a single used/quota counter gating growth of in-memory file, version, and
// trash bytes.
package quota

import (
	"sync"

	"github.com/picofs/picofs/pkg/errors"
)

// Unlimited disables all admission checks when configured as the quota.
const Unlimited int64 = -1

// Meter tracks used bytes against a configured quota. The zero value has a
// quota of 0 and rejects any growth; use New (with Unlimited to disable
// checks).
type Meter struct {
	mu    sync.Mutex
	quota int64
	used  int64
}

// New creates a Meter with the given quota in bytes. Pass Unlimited to
// disable checks.
func New(quota int64) *Meter {
	return &Meter{quota: quota}
}

// Reserve admits a prospective change of delta bytes (may be negative,
// which always succeeds and simply lowers used). A positive delta that
// would push used past quota is rejected with QuotaExceeded and leaves
// the meter unchanged.
func (m *Meter) Reserve(delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if delta <= 0 {
		m.used += delta
		if m.used < 0 {
			m.used = 0
		}
		return nil
	}
	if m.quota != Unlimited && m.used+delta > m.quota {
		return errors.QuotaExceeded("").WithDetail("requested", delta).WithDetail("used", m.used).WithDetail("quota", m.quota)
	}
	m.used += delta
	return nil
}

// Release lowers used by freed bytes (e.g. on delete or trash purge).
func (m *Meter) Release(freed int64) {
	if freed <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= freed
	if m.used < 0 {
		m.used = 0
	}
}

// Usage is a snapshot of the meter's state.
type Usage struct {
	Used      int64
	Quota     int64
	Available int64 // maxAvailable (1<<62) when unlimited
}

const maxAvailable = int64(1) << 62

// Snapshot reports the meter's current usage.
func (m *Meter) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota == Unlimited {
		return Usage{Used: m.used, Quota: Unlimited, Available: maxAvailable}
	}
	avail := m.quota - m.used
	if avail < 0 {
		avail = 0
	}
	return Usage{Used: m.used, Quota: m.quota, Available: avail}
}

// SetQuota changes the configured quota without touching used.
func (m *Meter) SetQuota(quota int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = quota
}
