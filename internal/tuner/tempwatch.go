package tuner

import (
	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
)

// TempWatch is the walk-down-only strategy: it never raises either axis and
// only reacts to the temperature ceiling. Useful for quiet operation where
// hashrate optimization is not wanted.
type TempWatch struct {
	envelope Envelope
	targets  Targets
	log      interfaces.ILogger
}

func NewTempWatch(envelope Envelope, targets Targets, log interfaces.ILogger) *TempWatch {
	return &TempWatch{envelope: envelope, targets: targets, log: log}
}

func (s *TempWatch) Decide(current OperatingPoint, t Telemetry) OperatingPoint {
	next := current
	if t.Temp > s.targets.TargetTemp {
		if current.Frequency > s.envelope.MinFrequency {
			next.Frequency = current.Frequency - s.envelope.FrequencyStep
			s.log.Infof("temp %.1fC over target, frequency -> %dMHz", t.Temp, next.Frequency)
		} else if current.Voltage > s.envelope.MinVoltage {
			next.Voltage = current.Voltage - s.envelope.VoltageStep
			s.log.Infof("temp %.1fC over target, voltage -> %dmV", t.Temp, next.Voltage)
		}
	}
	return s.envelope.Normalize(next)
}
