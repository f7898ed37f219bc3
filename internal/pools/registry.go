package pools

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const DefaultFreshnessWindow = 15 * time.Minute

var (
	ErrCatalogLoad     = errors.New("cannot load pool catalog")
	ErrCatalogEmpty    = errors.New("pool catalog has no valid endpoints")
	ErrNoReachablePool = errors.New("no reachable pool endpoint")
	ErrNoCredentials   = errors.New("cannot resolve stratum user")
)

// Record is one denormalized catalog row: the endpoint plus a cached median
// latency. It may lag behind the digest store until the next probe refreshes
// it (eventual consistency).
type Record struct {
	Endpoint   string     `yaml:"endpoint"`
	Fee        float64    `yaml:"fee,omitempty"`
	WWW        string     `yaml:"www,omitempty"`
	LatencyMS  *float64   `yaml:"latency_ms,omitempty"`
	LastTested *time.Time `yaml:"last_tested,omitempty"`

	parsed Endpoint
}

// Stratum is a selected endpoint with its resolved user.
type Stratum struct {
	Endpoint
	User string
}

// Assignment is the primary/backup pair pushed to the device. Backup
// duplicates primary only when fewer than two endpoints are reachable.
type Assignment struct {
	Primary Stratum
	Backup  Stratum
}

// Credentials carries the three user sources in precedence order: the
// explicit config value, what the device currently reports, and the
// defaults file.
type Credentials struct {
	Explicit      string
	DevicePrimary string
	DeviceBackup  string
	Defaults      *UserFile
}

// Registry owns the catalog document and hands out latency-ranked
// primary/backup pairs. All catalog writes, synchronous or from the
// background worker, are serialized behind one mutex and an atomic
// temp-file-and-rename, so a reader never observes a half-written catalog.
type Registry struct {
	catalogPath string
	freshness   time.Duration
	prober      *Prober
	log         interfaces.ILogger

	mu      sync.Mutex
	records []*Record

	queue chan Endpoint
	now   func() time.Time
}

func NewRegistry(catalogPath string, freshness time.Duration, prober *Prober, log interfaces.ILogger) *Registry {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	return &Registry{
		catalogPath: catalogPath,
		freshness:   freshness,
		prober:      prober,
		log:         log,
		queue:       make(chan Endpoint, 64),
		now:         time.Now,
	}
}

// Load reads and parses the catalog document. Rows with unparseable
// endpoints are rejected.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.catalogPath)
	if err != nil {
		return lib.WrapError(ErrCatalogLoad, err)
	}

	var records []*Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return lib.WrapError(ErrCatalogLoad, err)
	}

	for _, rec := range records {
		ep, err := ParseEndpoint(rec.Endpoint)
		if err != nil {
			return lib.WrapError(ErrCatalogLoad, err)
		}
		rec.parsed = ep
	}

	if len(records) == 0 {
		return ErrCatalogEmpty
	}

	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
	return nil
}

// Records returns a snapshot copy of the catalog rows.
func (r *Registry) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	for i, rec := range r.records {
		out[i] = *rec
	}
	return out
}

// Select picks the two lowest-median-latency reachable endpoints and
// resolves their users. With at least two fresh rows (and force unset) it
// answers from the cache without blocking; genuinely stale rows are only
// enqueued for the background worker. Otherwise it synchronously remeasures
// the whole catalog and persists the refreshed document before selecting.
func (r *Registry) Select(creds Credentials, force bool) (Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := 0
	for _, rec := range r.records {
		if !force && r.isFresh(rec) {
			fresh++
		}
	}

	if !force && fresh >= 2 {
		for _, rec := range r.records {
			if !r.isFresh(rec) {
				r.enqueue(rec.parsed)
			}
		}
	} else {
		r.remeasureAllLocked()
		if err := r.saveLocked(); err != nil {
			r.log.Warnf("failed to persist pool catalog: %s", err)
		}
	}

	candidates := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		if rec.LatencyMS != nil && !math.IsInf(*rec.LatencyMS, 1) {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return Assignment{}, ErrNoReachablePool
	}

	slices.SortStableFunc(candidates, func(a, b *Record) bool {
		return *a.LatencyMS < *b.LatencyMS
	})

	primary := candidates[0].parsed
	backup := primary
	if len(candidates) > 1 {
		backup = candidates[1].parsed
	}

	return r.resolveUsers(primary, backup, creds)
}

func (r *Registry) resolveUsers(primary, backup Endpoint, creds Credentials) (Assignment, error) {
	primaryUser := firstNonEmpty(creds.Explicit, creds.DevicePrimary, creds.Defaults.Lookup(primary))
	backupUser := firstNonEmpty(creds.Explicit, creds.DeviceBackup, creds.Defaults.Lookup(backup), primaryUser)

	if primaryUser == "" || backupUser == "" {
		return Assignment{}, ErrNoCredentials
	}

	return Assignment{
		Primary: Stratum{Endpoint: primary, User: primaryUser},
		Backup:  Stratum{Endpoint: backup, User: backupUser},
	}, nil
}

// isFresh reports whether a row's cached latency is recent enough to trust.
func (r *Registry) isFresh(rec *Record) bool {
	if rec.LatencyMS == nil || rec.LastTested == nil {
		return false
	}
	return r.now().Sub(*rec.LastTested) <= r.freshness
}

// remeasureAllLocked probes every row synchronously. Callers hold r.mu.
func (r *Registry) remeasureAllLocked() {
	for _, rec := range r.records {
		median := r.prober.Update(rec.parsed)
		now := r.now()
		rec.LatencyMS = &median
		rec.LastTested = &now
	}
}

// saveLocked rewrites the catalog atomically. Callers hold r.mu.
func (r *Registry) saveLocked() error {
	data, err := yaml.Marshal(r.records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.catalogPath)
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.catalogPath)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
