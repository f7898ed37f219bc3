package orchestrator

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
	"github.com/stretchr/testify/require"
)

func newTestTuningLog(t *testing.T) (*TuningLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning_log.csv")
	l := NewTuningLog(
		path,
		tuner.Gains{FreqKP: 0.2, FreqKI: 0.01, FreqKD: 0.02, VoltKP: 0.1, VoltKI: 0.01, VoltKD: 0.02},
		testEnvelope(),
		tuner.Targets{TargetTemp: 45, PowerLimit: 15, HashrateSetpoint: 500},
		5*time.Second,
		lib.NewTestLogger(),
	)
	return l, path
}

func testRecord() CycleRecord {
	return CycleRecord{
		Mac:       "AA:BB:CC:DD:EE:FF",
		Timestamp: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Target:    tuner.OperatingPoint{Voltage: 1200, Frequency: 500},
		Hashrate:  512.3,
		Temp:      43.5,
		Power:     14.2,
	}
}

func TestTuningLogWritesHeaderOnce(t *testing.T) {
	l, path := newTestTuningLog(t)

	l.Append(testRecord())
	l.Append(testRecord())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, tuningLogHeader, rows[0])
}

func TestTuningLogRowContent(t *testing.T) {
	l, path := newTestTuningLog(t)
	l.Append(testRecord())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	require.Len(t, row, len(tuningLogHeader))
	require.Equal(t, "AA:BB:CC:DD:EE:FF", row[0])
	require.Equal(t, "2026-08-23 12:00:00", row[1])
	require.Equal(t, "500", row[2])
	require.Equal(t, "1200", row[3])
	require.Equal(t, "512.3", row[4])
}

func TestTuningLogAppendsToExistingFile(t *testing.T) {
	l, path := newTestTuningLog(t)
	l.Append(testRecord())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	l.Append(testRecord())
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(after), len(before))
}
