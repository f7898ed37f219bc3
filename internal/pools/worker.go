package pools

import (
	"context"
)

// enqueue hands a stale endpoint to the background worker without blocking;
// a full queue just means the row waits for the next selection.
func (r *Registry) enqueue(e Endpoint) {
	select {
	case r.queue <- e:
	default:
		r.log.Debugf("probe queue full, skipping %s", e.Key())
	}
}

// Run is the background refresh worker: one consumer draining the stale-row
// queue, probing one endpoint at a time and folding the result back into the
// catalog through the same atomic-replace path as the synchronous
// remeasure. Probes are idempotent, so losing an in-flight one on shutdown
// is safe.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ep := <-r.queue:
			median := r.prober.Update(ep)
			r.applyProbe(ep, median)
		}
	}
}

func (r *Registry) applyProbe(ep Endpoint, median float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.parsed == ep {
			now := r.now()
			rec.LatencyMS = &median
			rec.LastTested = &now
		}
	}
	if err := r.saveLocked(); err != nil {
		r.log.Warnf("failed to persist pool catalog after probe of %s: %s", ep.Key(), err)
	}
}
