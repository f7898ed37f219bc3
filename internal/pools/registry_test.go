package pools

import (
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

func pipeDialer(network, addr string, timeout time.Duration) (net.Conn, error) {
	c1, c2 := net.Pipe()
	go func() { _ = c2.Close() }()
	return c1, nil
}

func failDialer(network, addr string, timeout time.Duration) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded}
}

func writeCatalog(t *testing.T, records []*Record) string {
	t.Helper()
	data, err := yaml.Marshal(records)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestRegistry(t *testing.T, records []*Record, dial Dialer) *Registry {
	t.Helper()
	log := lib.NewTestLogger()
	store := NewDigestStore(t.TempDir(), log)
	prober := NewProber(store, 2, time.Second, log)
	prober.SetDialer(dial)

	r := NewRegistry(writeCatalog(t, records), 15*time.Minute, prober, log)
	r.now = func() time.Time { return testNow }
	require.NoError(t, r.Load())
	return r
}

func latencyRecord(endpoint string, ms float64, tested time.Time) *Record {
	return &Record{Endpoint: endpoint, LatencyMS: &ms, LastTested: &tested}
}

func TestLoadRejectsInvalidEndpoint(t *testing.T) {
	log := lib.NewTestLogger()
	path := writeCatalog(t, []*Record{{Endpoint: "no-scheme-or-port"}})
	r := NewRegistry(path, 0, nil, log)

	err := r.Load()
	require.ErrorIs(t, err, ErrCatalogLoad)
}

func TestLoadEmptyCatalog(t *testing.T) {
	log := lib.NewTestLogger()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]\n"), 0o644))
	r := NewRegistry(path, 0, nil, log)

	err := r.Load()
	require.ErrorIs(t, err, ErrCatalogEmpty)
}

func TestLoadMissingCatalog(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"), 0, nil, lib.NewTestLogger())
	require.ErrorIs(t, r.Load(), ErrCatalogLoad)
}

func TestSelectFreshCacheAnswersWithoutProbing(t *testing.T) {
	var dials atomic.Int32
	countingDialer := func(network, addr string, timeout time.Duration) (net.Conn, error) {
		dials.Add(1)
		return pipeDialer(network, addr, timeout)
	}

	fresh := testNow.Add(-time.Minute)
	stale := testNow.Add(-time.Hour)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, fresh),
		latencyRecord("stratum+tcp://b.example.com:3333", 25, fresh),
		latencyRecord("stratum+tcp://c.example.com:3333", 90, stale),
	}, countingDialer)

	a, err := r.Select(Credentials{Explicit: "worker1"}, false)
	require.NoError(t, err)

	require.Equal(t, "b.example.com", a.Primary.Hostname)
	require.Equal(t, "a.example.com", a.Backup.Hostname)
	require.Equal(t, int32(0), dials.Load())

	// the stale row was handed to the background worker
	select {
	case ep := <-r.queue:
		require.Equal(t, "c.example.com", ep.Hostname)
	default:
		t.Fatal("expected stale endpoint in probe queue")
	}
}

func TestSelectRemeasuresWhenCacheStale(t *testing.T) {
	stale := testNow.Add(-time.Hour)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, stale),
		latencyRecord("stratum+tcp://b.example.com:3333", 25, stale),
	}, pipeDialer)

	_, err := r.Select(Credentials{Explicit: "worker1"}, false)
	require.NoError(t, err)

	for _, rec := range r.Records() {
		require.NotNil(t, rec.LatencyMS)
		require.False(t, math.IsInf(*rec.LatencyMS, 1))
		require.NotNil(t, rec.LastTested)
		require.True(t, rec.LastTested.Equal(testNow))
	}
}

func TestSelectForceRemeasuresFreshRows(t *testing.T) {
	var dials atomic.Int32
	countingDialer := func(network, addr string, timeout time.Duration) (net.Conn, error) {
		dials.Add(1)
		return pipeDialer(network, addr, timeout)
	}

	fresh := testNow.Add(-time.Minute)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, fresh),
		latencyRecord("stratum+tcp://b.example.com:3333", 25, fresh),
	}, countingDialer)

	_, err := r.Select(Credentials{Explicit: "worker1"}, true)
	require.NoError(t, err)
	require.Greater(t, dials.Load(), int32(0))
}

func TestSelectPersistsCatalogAfterRemeasure(t *testing.T) {
	stale := testNow.Add(-time.Hour)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, stale),
		latencyRecord("stratum+tcp://b.example.com:3333", 25, stale),
	}, pipeDialer)

	_, err := r.Select(Credentials{Explicit: "worker1"}, false)
	require.NoError(t, err)

	data, err := os.ReadFile(r.catalogPath)
	require.NoError(t, err)

	var saved []*Record
	require.NoError(t, yaml.Unmarshal(data, &saved))
	require.Len(t, saved, 2)
	for _, rec := range saved {
		require.NotNil(t, rec.LatencyMS)
		require.NotNil(t, rec.LastTested)
	}
}

func TestSelectSingleReachableDuplicatesBackup(t *testing.T) {
	fresh := testNow.Add(-time.Minute)
	inf := math.Inf(1)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, fresh),
		{Endpoint: "stratum+tcp://dead.example.com:3333", LatencyMS: &inf, LastTested: &fresh},
	}, pipeDialer)

	a, err := r.Select(Credentials{Explicit: "worker1"}, false)
	require.NoError(t, err)
	require.Equal(t, a.Primary.Endpoint, a.Backup.Endpoint)
	require.Equal(t, "a.example.com", a.Primary.Hostname)
}

func TestSelectNoReachablePool(t *testing.T) {
	r := newTestRegistry(t, []*Record{
		{Endpoint: "stratum+tcp://a.example.com:3333"},
		{Endpoint: "stratum+tcp://b.example.com:3333"},
	}, failDialer)

	_, err := r.Select(Credentials{Explicit: "worker1"}, false)
	require.ErrorIs(t, err, ErrNoReachablePool)
}

func TestResolveUsersPrecedence(t *testing.T) {
	r := newTestRegistry(t, []*Record{
		{Endpoint: "stratum+tcp://a.example.com:3333"},
	}, pipeDialer)

	primary := Endpoint{Hostname: "a.example.com", Port: 3333}
	backup := Endpoint{Hostname: "b.example.com", Port: 3333}
	defaults := &UserFile{
		Default: "filedefault",
		Pools:   map[string]string{"a.example.com-3333": "fileuser"},
	}

	// explicit beats everything
	a, err := r.resolveUsers(primary, backup, Credentials{
		Explicit: "explicit", DevicePrimary: "device", Defaults: defaults,
	})
	require.NoError(t, err)
	require.Equal(t, "explicit", a.Primary.User)
	require.Equal(t, "explicit", a.Backup.User)

	// device-reported user beats the defaults file
	a, err = r.resolveUsers(primary, backup, Credentials{
		DevicePrimary: "devprimary", DeviceBackup: "devbackup", Defaults: defaults,
	})
	require.NoError(t, err)
	require.Equal(t, "devprimary", a.Primary.User)
	require.Equal(t, "devbackup", a.Backup.User)

	// defaults file: per-pool entry, then global default
	a, err = r.resolveUsers(primary, backup, Credentials{Defaults: defaults})
	require.NoError(t, err)
	require.Equal(t, "fileuser", a.Primary.User)
	require.Equal(t, "filedefault", a.Backup.User)

	// backup falls back to the resolved primary user
	a, err = r.resolveUsers(primary, backup, Credentials{DevicePrimary: "onlyprimary"})
	require.NoError(t, err)
	require.Equal(t, "onlyprimary", a.Backup.User)

	// nothing resolvable
	_, err = r.resolveUsers(primary, backup, Credentials{})
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestWorkerRefreshesStaleRow(t *testing.T) {
	stale := testNow.Add(-time.Hour)
	r := newTestRegistry(t, []*Record{
		latencyRecord("stratum+tcp://a.example.com:3333", 40, stale),
	}, pipeDialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.enqueue(Endpoint{Hostname: "a.example.com", Port: 3333})

	require.Eventually(t, func() bool {
		rec := r.Records()[0]
		return rec.LastTested != nil && rec.LastTested.Equal(testNow)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	r := newTestRegistry(t, []*Record{
		{Endpoint: "stratum+tcp://a.example.com:3333"},
	}, pipeDialer)

	ep := Endpoint{Hostname: "a.example.com", Port: 3333}
	for i := 0; i < cap(r.queue)+10; i++ {
		r.enqueue(ep)
	}
}
