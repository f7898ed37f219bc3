package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/axeos"
	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/kha1n3vol3/BitaxePID/internal/pools"
	"github.com/kha1n3vol3/BitaxePID/internal/stats"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
)

var ErrDeviceUnreachable = errors.New("device unreachable at startup")

type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateStopping
)

// HardwareGateway is the device control plane as seen by the sampling loop.
// Implemented by axeos.Client; faked in tests.
type HardwareGateway interface {
	GetSystemInfo(ctx context.Context) (*axeos.SystemInfo, error)
	ApplySettings(ctx context.Context, p tuner.OperatingPoint) (int, error)
	SetStratum(ctx context.Context, a pools.Assignment) error
	Restart(ctx context.Context) error
	Close()
}

// PoolSelector resolves the primary/backup stratum pair.
type PoolSelector interface {
	Select(creds pools.Credentials, force bool) (pools.Assignment, error)
}

// Config is the orchestrator's immutable run configuration, resolved once
// before Run.
type Config struct {
	Envelope       tuner.Envelope
	Targets        tuner.Targets
	Gains          tuner.Gains
	SampleInterval time.Duration
	InitialPoint   tuner.OperatingPoint
	ExplicitUser   string
	ForceMeasure   bool
}

// Orchestrator drives the sampling loop: read telemetry, decide, apply,
// persist, publish. One instance per device, single goroutine.
type Orchestrator struct {
	cfg      Config
	gateway  HardwareGateway
	selector PoolSelector
	strategy tuner.Strategy
	users    *pools.UserFile

	snapshot  *SnapshotManager
	tuningLog *TuningLog
	registry  *stats.Registry
	metrics   *stats.Metrics

	current tuner.OperatingPoint
	state   atomic.Int32

	log interfaces.ILogger
}

func NewOrchestrator(
	cfg Config,
	gateway HardwareGateway,
	selector PoolSelector,
	strategy tuner.Strategy,
	users *pools.UserFile,
	snapshot *SnapshotManager,
	tuningLog *TuningLog,
	registry *stats.Registry,
	metrics *stats.Metrics,
	log interfaces.ILogger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		gateway:   gateway,
		selector:  selector,
		strategy:  strategy,
		users:     users,
		snapshot:  snapshot,
		tuningLog: tuningLog,
		registry:  registry,
		metrics:   metrics,
		current:   cfg.Envelope.Normalize(cfg.InitialPoint),
		log:       log,
	}
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// CurrentPoint returns the operating point the loop considers applied.
func (o *Orchestrator) CurrentPoint() tuner.OperatingPoint {
	return o.current
}

// Run executes the INITIALIZING -> RUNNING -> STOPPING lifecycle. It
// returns ctx.Err() after a clean shutdown, or the startup-fatal error that
// prevented entering RUNNING.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.gateway.Close()

	if err := o.initialize(ctx); err != nil {
		return err
	}

	o.state.Store(int32(StateRunning))
	o.log.Infof("running: target temp %.1fC, power limit %.1fW, hashrate setpoint %.0f GH/s",
		o.cfg.Targets.TargetTemp, o.cfg.Targets.PowerLimit, o.cfg.Targets.HashrateSetpoint)

	for {
		select {
		case <-ctx.Done():
			return o.stop(ctx)
		default:
		}

		o.cycle(ctx)

		select {
		case <-ctx.Done():
			return o.stop(ctx)
		case <-time.After(o.cfg.SampleInterval):
		}
	}
}

// initialize confirms the device is reachable, pushes the stratum
// assignment, restarts, and applies the initial operating point. Only an
// unreachable device, an empty selection, or unresolved credentials are
// fatal here.
func (o *Orchestrator) initialize(ctx context.Context) error {
	o.state.Store(int32(StateInitializing))

	info, err := o.gateway.GetSystemInfo(ctx)
	if err != nil {
		return lib.WrapError(ErrDeviceUnreachable, err)
	}

	creds := pools.Credentials{
		Explicit:      o.cfg.ExplicitUser,
		DevicePrimary: info.StratumUser,
		DeviceBackup:  info.FallbackStratumUser,
		Defaults:      o.users,
	}
	assignment, err := o.selector.Select(creds, o.cfg.ForceMeasure)
	if err != nil {
		return err
	}

	if err := o.gateway.SetStratum(ctx, assignment); err != nil {
		o.log.Warnf("failed to push stratum assignment, keeping device config: %s", err)
	} else if err := o.gateway.Restart(ctx); err != nil {
		// keep operating with whatever was already applied
		o.log.Warnf("restart verification failed: %s", err)
	}

	if _, err := o.gateway.ApplySettings(ctx, o.current); err != nil {
		o.log.Warnf("failed to apply initial operating point: %s", err)
	}
	o.snapshot.Save(o.current)
	return nil
}

// cycle is one sampling iteration: telemetry -> decision -> apply ->
// persist -> publish, strictly in that order. A failed telemetry read skips
// the cycle; it never exits the loop.
func (o *Orchestrator) cycle(ctx context.Context) {
	info, err := o.gateway.GetSystemInfo(ctx)
	if err != nil {
		o.log.Warnf("no telemetry this cycle: %s", err)
		return
	}

	telemetry := o.telemetryFrom(info)
	next := o.strategy.Decide(o.current, telemetry)

	if next != o.current {
		applied, err := o.gateway.ApplySettings(ctx, next)
		if err != nil {
			o.log.Warnf("failed to apply %dmV/%dMHz: %s", next.Voltage, next.Frequency, err)
		} else {
			next.Frequency = applied
			o.current = next
			o.snapshot.Save(o.current)
		}
	}

	o.publish(info, telemetry)
}

// telemetryFrom converts a device document into the controller's input,
// substituting a conservative above-target temperature when the reading is
// missing so the controller always sees a hard-constraint signal.
func (o *Orchestrator) telemetryFrom(info *axeos.SystemInfo) tuner.Telemetry {
	temp := o.cfg.Targets.TargetTemp + 1
	if info.Temp != nil {
		temp = *info.Temp
	}
	return tuner.Telemetry{
		Temp:      temp,
		Power:     info.Power,
		Hashrate:  info.HashRate,
		Timestamp: time.Now(),
	}
}

func (o *Orchestrator) publish(info *axeos.SystemInfo, telemetry tuner.Telemetry) {
	if o.tuningLog != nil {
		o.tuningLog.Append(CycleRecord{
			Mac:               info.MacAddr,
			Timestamp:         telemetry.Timestamp,
			Target:            o.current,
			Hashrate:          telemetry.Hashrate,
			Temp:              telemetry.Temp,
			Power:             telemetry.Power,
			BoardVoltage:      info.Voltage,
			Current:           info.Current,
			CoreVoltageActual: info.CoreVoltageActual,
			Frequency:         info.Frequency,
			FanRPM:            info.FanRPM,
		})
	}

	snapshot := stats.DeviceSnapshot{
		Device:         info.MacAddr,
		Hostname:       info.Hostname,
		Timestamp:      telemetry.Timestamp,
		Voltage:        o.current.Voltage,
		Frequency:      o.current.Frequency,
		Temp:           telemetry.Temp,
		Power:          telemetry.Power,
		Hashrate:       telemetry.Hashrate,
		SharesAccepted: info.SharesAccepted,
		SharesRejected: info.SharesRejected,
	}
	if o.registry != nil {
		o.registry.Publish(snapshot)
	}
	if o.metrics != nil {
		o.metrics.Observe(snapshot)
	}
}

// stop performs the best-effort final persist. The background probe worker
// needs no handshake; its probes are idempotent.
func (o *Orchestrator) stop(ctx context.Context) error {
	o.state.Store(int32(StateStopping))
	o.snapshot.Save(o.current)
	o.log.Info("stopped, final snapshot saved")
	return ctx.Err()
}
