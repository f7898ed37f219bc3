package pools

import (
	"bytes"
	"math"
	"os"
	"path/filepath"

	"github.com/caio/go-tdigest/v4"
	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
)

const digestCompression = 100

// DigestStore persists one t-digest of connect latencies per endpoint.
// New samples merge into the digest; the sketch's own compaction bounds the
// file size, so history is never explicitly trimmed.
type DigestStore struct {
	dir string
	log interfaces.ILogger
}

func NewDigestStore(dir string, log interfaces.ILogger) *DigestStore {
	return &DigestStore{dir: dir, log: log}
}

func (s *DigestStore) path(e Endpoint) string {
	return filepath.Join(s.dir, lib.SanitizeFilename(e.Key())+".tdigest")
}

// Load returns the endpoint's digest, or a fresh one if the file is missing
// or unreadable. A corrupt file never fails a probe cycle.
func (s *DigestStore) Load(e Endpoint) *tdigest.TDigest {
	data, err := os.ReadFile(s.path(e))
	if err == nil {
		d, derr := tdigest.FromBytes(bytes.NewReader(data), tdigest.Compression(digestCompression))
		if derr == nil {
			return d
		}
		s.log.Warnf("corrupt latency digest for %s, starting fresh: %s", e.Key(), derr)
	}
	d, _ := tdigest.New(tdigest.Compression(digestCompression))
	return d
}

func (s *DigestStore) Save(e Endpoint, d *tdigest.TDigest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := d.AsBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(e), data, 0o644)
}

// Median estimates the digest's median latency in milliseconds, or +Inf for
// an empty digest.
func Median(d *tdigest.TDigest) float64 {
	if d.Count() == 0 {
		return math.Inf(1)
	}
	return d.Quantile(0.5)
}
