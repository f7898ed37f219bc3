package stats

import (
	"sync"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/lib"
)

const timeKeyLayout = "2006-01-02T15:04:05.000"

// DeviceSnapshot is the most recent telemetry published for one device,
// read by the metrics responder without touching the sampling loop.
type DeviceSnapshot struct {
	Device    string    `json:"device"`
	Hostname  string    `json:"hostname"`
	Timestamp time.Time `json:"timestamp"`

	Voltage   int `json:"voltage"`
	Frequency int `json:"frequency"`

	Temp     float64 `json:"temp"`
	Power    float64 `json:"power"`
	Hashrate float64 `json:"hashrate"`

	SharesAccepted int64 `json:"sharesAccepted"`
	SharesRejected int64 `json:"sharesRejected"`
}

// Registry replaces what would otherwise be module-level mutable globals: a
// shared, lock-guarded view of the latest snapshot per device plus a bounded
// ring of recent samples.
type Registry struct {
	mu      sync.RWMutex
	latest  map[string]DeviceSnapshot
	history *lib.BoundStackMap[DeviceSnapshot]
}

func NewRegistry(historySize int) *Registry {
	return &Registry{
		latest:  make(map[string]DeviceSnapshot),
		history: lib.NewBoundStackMap[DeviceSnapshot](historySize),
	}
}

func (r *Registry) Publish(s DeviceSnapshot) {
	r.mu.Lock()
	r.latest[s.Device] = s
	r.mu.Unlock()

	r.history.Push(s.Timestamp.Format(timeKeyLayout), s)
}

// Latest returns the most recent snapshot of every known device.
func (r *Registry) Latest() []DeviceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceSnapshot, 0, len(r.latest))
	for _, s := range r.latest {
		out = append(out, s)
	}
	return out
}

// History returns the retained samples, oldest first.
func (r *Registry) History() []DeviceSnapshot {
	keys := r.history.Keys()
	out := make([]DeviceSnapshot, 0, len(keys))
	for _, k := range keys {
		if s, ok := r.history.Get(k); ok {
			out = append(out, s)
		}
	}
	return out
}
