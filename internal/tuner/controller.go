package tuner

import (
	"math"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"go.einride.tech/pid"
)

const (
	// power gets 7.5% headroom above the configured limit before the
	// controller starts penalizing voltage
	powerHeadroom = 1.075

	// below this fraction of the setpoint the controller boosts voltage
	// one step per cycle to recover
	recoveryFraction = 0.85

	DefaultStagnationThreshold = 3
	DefaultDropThreshold       = 30
)

// Gains are the PID coefficients for both axes.
type Gains struct {
	FreqKP, FreqKI, FreqKD float64
	VoltKP, VoltKI, VoltKD float64
}

// Controller is the PID-based tuning strategy. Priority order: temperature
// ceiling, power ceiling, then hashrate optimization. All returned points
// are normalized to the envelope.
//
// The controller owns its trend state (last hashrate, stagnation and drop
// counters, PID accumulators) and must be driven by a single goroutine.
type Controller struct {
	envelope Envelope
	targets  Targets
	interval time.Duration

	stagnationThreshold int
	dropThreshold       int

	pidFreq pid.Controller
	pidVolt pid.Controller

	lastHashrate    float64
	seeded          bool
	stagnationCount int
	dropCount       int

	log interfaces.ILogger
}

func NewController(envelope Envelope, targets Targets, gains Gains, interval time.Duration, log interfaces.ILogger) *Controller {
	return &Controller{
		envelope:            envelope,
		targets:             targets,
		interval:            interval,
		stagnationThreshold: DefaultStagnationThreshold,
		dropThreshold:       DefaultDropThreshold,
		pidFreq: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: gains.FreqKP,
				IntegralGain:     gains.FreqKI,
				DerivativeGain:   gains.FreqKD,
			},
		},
		pidVolt: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: gains.VoltKP,
				IntegralGain:     gains.VoltKI,
				DerivativeGain:   gains.VoltKD,
			},
		},
		log: log,
	}
}

// SetTrendThresholds overrides the stagnation and drop counters' trigger
// points. Zero values keep the defaults.
func (c *Controller) SetTrendThresholds(stagnation, drop int) {
	if stagnation > 0 {
		c.stagnationThreshold = stagnation
	}
	if drop > 0 {
		c.dropThreshold = drop
	}
}

// Decide maps one telemetry sample to the next operating point. The input
// temperature must already be substituted with a conservative value if the
// device reading was missing.
func (c *Controller) Decide(current OperatingPoint, t Telemetry) OperatingPoint {
	proposedFreq, proposedVolt := c.propose(current, t.Hashrate)
	c.observeTrend(t.Hashrate)

	next := current

	switch {
	case t.Temp > c.targets.TargetTemp:
		// hard constraint: temperature. Never raises either axis.
		if current.Frequency > c.envelope.MinFrequency {
			next.Frequency = current.Frequency - c.envelope.FrequencyStep
			c.log.Infof("temp %.1fC over target %.1fC, frequency -> %dMHz", t.Temp, c.targets.TargetTemp, next.Frequency)
		} else if current.Voltage > c.envelope.MinVoltage {
			next.Voltage = current.Voltage - c.envelope.VoltageStep
			c.log.Infof("temp %.1fC over target, frequency at floor, voltage -> %dmV", t.Temp, next.Voltage)
		} else {
			c.log.Warnf("temp %.1fC over target %.1fC, no further reduction possible", t.Temp, c.targets.TargetTemp)
		}

	case t.Power > c.targets.PowerLimit*powerHeadroom:
		// hard constraint: power, checked only when temperature is in bound
		if current.Voltage > c.envelope.MinVoltage {
			next.Voltage = current.Voltage - c.envelope.VoltageStep
			c.log.Infof("power %.2fW over limit %.2fW, voltage -> %dmV", t.Power, c.targets.PowerLimit*powerHeadroom, next.Voltage)
		} else {
			c.log.Warnf("power %.2fW over limit, voltage at floor", t.Power)
		}

	case t.Hashrate < c.targets.HashrateSetpoint:
		if c.dropCount >= c.dropThreshold && current.Frequency > c.envelope.MinFrequency {
			// sustained degradation without a hard-limit breach: damp
			// instead of following the raw proposal
			next.Frequency = current.Frequency - c.envelope.FrequencyStep
			c.log.Infof("hashrate dropped %d cycles in a row, frequency -> %dMHz", c.dropCount, next.Frequency)
		} else {
			if t.Hashrate < recoveryFraction*c.targets.HashrateSetpoint && current.Voltage < c.envelope.MaxVoltage {
				next.Voltage = stepToward(current.Voltage, proposedVolt, c.envelope.VoltageStep)
				c.log.Infof("hashrate %.1f below %.0f%% of setpoint, voltage -> %dmV", t.Hashrate, recoveryFraction*100, next.Voltage)
			}
			next.Frequency = proposedFreq
			if current.Frequency >= c.envelope.MaxFrequency && next.Voltage < c.envelope.MaxVoltage {
				next.Voltage += c.envelope.VoltageStep
				c.log.Infof("frequency at ceiling, voltage -> %dmV", next.Voltage)
			}
		}

	default:
		// setpoint met, no constraint active: hold
		c.log.Debugf("stable at %dmV / %dMHz, hashrate %.1f", current.Voltage, current.Frequency, t.Hashrate)
	}

	return c.envelope.Normalize(next)
}

// propose advances both PID loops one sample and converts their control
// signals into quantized, clamped absolute targets.
func (c *Controller) propose(current OperatingPoint, hashrate float64) (freq, volt int) {
	input := pid.ControllerInput{
		ReferenceSignal:  c.targets.HashrateSetpoint,
		ActualSignal:     hashrate,
		SamplingInterval: c.interval,
	}
	c.pidFreq.Update(input)
	c.pidVolt.Update(input)

	freq = c.envelope.ClampFrequency(c.envelope.QuantizeFrequency(current.Frequency + int(math.Round(c.pidFreq.State.ControlSignal))))
	volt = c.envelope.ClampVoltage(c.envelope.QuantizeVoltage(current.Voltage + int(math.Round(c.pidVolt.State.ControlSignal))))
	return freq, volt
}

// observeTrend updates the drop/stagnation counters and clears the PID
// accumulators when the hashrate has been pinned to the same value for too
// long (stuck equilibrium).
func (c *Controller) observeTrend(hashrate float64) {
	dropped := c.seeded && hashrate < c.lastHashrate
	stagnated := c.seeded && hashrate == c.lastHashrate

	if dropped {
		c.dropCount++
	} else {
		c.dropCount = 0
	}
	if stagnated {
		c.stagnationCount++
	} else {
		c.stagnationCount = 0
	}

	if c.stagnationCount >= c.stagnationThreshold {
		c.log.Infof("hashrate stagnated for %d cycles, resetting PID accumulators", c.stagnationCount)
		c.pidFreq.Reset()
		c.pidVolt.Reset()
		c.stagnationCount = 0
	}

	c.lastHashrate = hashrate
	c.seeded = true
}

// stepToward moves cur at most one step in the direction of target.
func stepToward(cur, target, step int) int {
	if target > cur {
		if target-cur < step {
			return target
		}
		return cur + step
	}
	if cur-target < step {
		return target
	}
	return cur - step
}
