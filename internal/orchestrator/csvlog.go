package orchestrator

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
)

const csvTimeLayout = "2006-01-02 15:04:05"

var tuningLogHeader = []string{
	"mac_address", "timestamp",
	"target_frequency", "target_voltage",
	"hashrate", "temp", "power",
	"board_voltage", "current", "core_voltage_actual", "frequency", "fanrpm",
	"pid_freq_kp", "pid_freq_ki", "pid_freq_kd",
	"pid_volt_kp", "pid_volt_ki", "pid_volt_kd",
	"min_frequency", "max_frequency", "frequency_step",
	"min_voltage", "max_voltage", "voltage_step",
	"target_temp", "power_limit", "hashrate_setpoint", "sample_interval",
}

// CycleRecord is one tuning-log row: the target point, the raw telemetry
// behind the decision, and the active gains and envelope for later analysis.
type CycleRecord struct {
	Mac       string
	Timestamp time.Time

	Target tuner.OperatingPoint

	Hashrate          float64
	Temp              float64
	Power             float64
	BoardVoltage      float64
	Current           float64
	CoreVoltageActual int
	Frequency         int
	FanRPM            int
}

// TuningLog appends one CSV row per sampling cycle. The header is written
// once, when the file does not exist yet.
type TuningLog struct {
	path     string
	gains    tuner.Gains
	envelope tuner.Envelope
	targets  tuner.Targets
	interval time.Duration
	log      interfaces.ILogger
}

func NewTuningLog(path string, gains tuner.Gains, envelope tuner.Envelope, targets tuner.Targets, interval time.Duration, log interfaces.ILogger) *TuningLog {
	return &TuningLog{
		path:     path,
		gains:    gains,
		envelope: envelope,
		targets:  targets,
		interval: interval,
		log:      log,
	}
}

// Append writes one record. Errors are logged and swallowed: losing a log
// row never interrupts the sampling loop.
func (l *TuningLog) Append(rec CycleRecord) {
	_, statErr := os.Stat(l.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		l.log.Warnf("cannot open tuning log %s: %s", l.path, err)
		return
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(tuningLogHeader); err != nil {
			l.log.Warnf("cannot write tuning log header: %s", err)
			return
		}
	}

	row := []string{
		rec.Mac,
		rec.Timestamp.Format(csvTimeLayout),
		itoa(rec.Target.Frequency), itoa(rec.Target.Voltage),
		ftoa(rec.Hashrate), ftoa(rec.Temp), ftoa(rec.Power),
		ftoa(rec.BoardVoltage), ftoa(rec.Current),
		itoa(rec.CoreVoltageActual), itoa(rec.Frequency), itoa(rec.FanRPM),
		ftoa(l.gains.FreqKP), ftoa(l.gains.FreqKI), ftoa(l.gains.FreqKD),
		ftoa(l.gains.VoltKP), ftoa(l.gains.VoltKI), ftoa(l.gains.VoltKD),
		itoa(l.envelope.MinFrequency), itoa(l.envelope.MaxFrequency), itoa(l.envelope.FrequencyStep),
		itoa(l.envelope.MinVoltage), itoa(l.envelope.MaxVoltage), itoa(l.envelope.VoltageStep),
		ftoa(l.targets.TargetTemp), ftoa(l.targets.PowerLimit), ftoa(l.targets.HashrateSetpoint),
		l.interval.String(),
	}
	if err := w.Write(row); err != nil {
		l.log.Warnf("cannot write tuning log row: %s", err)
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		l.log.Warnf("tuning log flush failed: %s", err)
	}
}

func itoa(v int) string {
	return fmt.Sprintf("%d", v)
}

func ftoa(v float64) string {
	return fmt.Sprintf("%g", v)
}
