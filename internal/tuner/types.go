package tuner

import "time"

// OperatingPoint is a quantized (voltage, frequency) setting. Values are
// always inside the envelope and aligned to its steps after Normalize.
type OperatingPoint struct {
	Voltage   int `json:"voltage"`   // mV
	Frequency int `json:"frequency"` // MHz
}

// Envelope holds the inclusive bounds and step granularity for both axes.
// Loaded once from config, shared read-only.
type Envelope struct {
	MinVoltage    int
	MaxVoltage    int
	VoltageStep   int
	MinFrequency  int
	MaxFrequency  int
	FrequencyStep int
}

// Targets are the per-run setpoints the controller steers against.
type Targets struct {
	TargetTemp       float64 // celsius
	PowerLimit       float64 // watts
	HashrateSetpoint float64 // GH/s
}

// Telemetry is one sample read from the device. Consumers must substitute a
// conservative temperature (above target) before calling Decide if the
// reading is missing.
type Telemetry struct {
	Temp      float64
	Power     float64
	Hashrate  float64
	Timestamp time.Time
}

// Strategy converts one telemetry sample into the next operating point.
// Implementations keep their own trend state between calls and are not safe
// for concurrent use.
type Strategy interface {
	Decide(current OperatingPoint, t Telemetry) OperatingPoint
}

func (e Envelope) QuantizeVoltage(v int) int {
	return quantize(v, e.VoltageStep)
}

func (e Envelope) QuantizeFrequency(f int) int {
	return quantize(f, e.FrequencyStep)
}

func (e Envelope) ClampVoltage(v int) int {
	return clamp(v, e.MinVoltage, e.MaxVoltage)
}

func (e Envelope) ClampFrequency(f int) int {
	return clamp(f, e.MinFrequency, e.MaxFrequency)
}

// Normalize re-quantizes and re-clamps both axes. Every point handed to the
// orchestrator goes through here.
func (e Envelope) Normalize(p OperatingPoint) OperatingPoint {
	return OperatingPoint{
		Voltage:   e.ClampVoltage(e.QuantizeVoltage(p.Voltage)),
		Frequency: e.ClampFrequency(e.QuantizeFrequency(p.Frequency)),
	}
}

func quantize(v, step int) int {
	if step <= 0 {
		return v
	}
	half := step / 2
	if v < 0 {
		return -quantize(-v, step)
	}
	return ((v + half) / step) * step
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
