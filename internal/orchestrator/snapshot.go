package orchestrator

import (
	"encoding/json"
	"os"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
)

// SnapshotManager persists the current operating point so a restart resumes
// from the last tuned settings instead of the configured initial point.
type SnapshotManager struct {
	path string
	log  interfaces.ILogger
}

func NewSnapshotManager(path string, log interfaces.ILogger) *SnapshotManager {
	return &SnapshotManager{path: path, log: log}
}

// Load returns the persisted point, or def when the snapshot is missing or
// unreadable.
func (s *SnapshotManager) Load(def tuner.OperatingPoint) tuner.OperatingPoint {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return def
	}
	var p tuner.OperatingPoint
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warnf("cannot parse snapshot %s, using defaults: %s", s.path, err)
		return def
	}
	if p.Voltage == 0 || p.Frequency == 0 {
		return def
	}
	return p
}

// Save overwrites the snapshot. Failure is logged, not fatal; the in-memory
// point stays authoritative until the next successful write.
func (s *SnapshotManager) Save(p tuner.OperatingPoint) {
	data, err := json.Marshal(p)
	if err != nil {
		s.log.Warnf("cannot encode snapshot: %s", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Warnf("failed to save snapshot %s: %s", s.path, err)
	}
}
