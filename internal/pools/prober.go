package pools

import (
	"math"
	"net"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
)

const (
	DefaultProbeCount   = 5
	DefaultProbeTimeout = 3 * time.Second
)

// Dialer is swappable for tests. net.DialTimeout satisfies it.
type Dialer func(network, addr string, timeout time.Duration) (net.Conn, error)

// Prober times TCP connects against one endpoint at a time and merges the
// samples into the endpoint's persisted digest.
type Prober struct {
	store   *DigestStore
	dial    Dialer
	count   int
	timeout time.Duration
	log     interfaces.ILogger
}

func NewProber(store *DigestStore, count int, timeout time.Duration, log interfaces.ILogger) *Prober {
	if count <= 0 {
		count = DefaultProbeCount
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		store:   store,
		dial:    net.DialTimeout,
		count:   count,
		timeout: timeout,
		log:     log,
	}
}

// SetDialer replaces the dial function, for tests.
func (p *Prober) SetDialer(d Dialer) {
	p.dial = d
}

// Measure performs a single bounded connect-and-close attempt and returns
// the latency in milliseconds, or +Inf on failure.
func (p *Prober) Measure(e Endpoint) float64 {
	start := time.Now()
	conn, err := p.dial("tcp", e.Addr(), p.timeout)
	if err != nil {
		return math.Inf(1)
	}
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	_ = conn.Close()
	return latency
}

// Update runs the configured number of measurements, merges every successful
// sample into the endpoint's digest, persists it, and returns the digest's
// median estimate. Returns +Inf when no attempt succeeded; an unreachable
// endpoint is a deselection signal, not an error.
func (p *Prober) Update(e Endpoint) float64 {
	d := p.store.Load(e)

	ok := 0
	for i := 0; i < p.count; i++ {
		latency := p.Measure(e)
		if math.IsInf(latency, 1) {
			continue
		}
		if err := d.Add(latency); err != nil {
			p.log.Warnf("digest add failed for %s: %s", e.Key(), err)
			continue
		}
		ok++
	}
	if ok == 0 {
		p.log.Debugf("endpoint %s unreachable after %d attempts", e.Key(), p.count)
		return math.Inf(1)
	}

	if err := p.store.Save(e, d); err != nil {
		// persistence failure: in-memory digest stays authoritative
		p.log.Warnf("failed to persist latency digest for %s: %s", e.Key(), err)
	}
	return Median(d)
}
