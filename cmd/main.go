package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kha1n3vol3/BitaxePID/internal/axeos"
	"github.com/kha1n3vol3/BitaxePID/internal/config"
	"github.com/kha1n3vol3/BitaxePID/internal/handlers"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/kha1n3vol3/BitaxePID/internal/orchestrator"
	"github.com/kha1n3vol3/BitaxePID/internal/pools"
	"github.com/kha1n3vol3/BitaxePID/internal/stats"
	"github.com/kha1n3vol3/BitaxePID/internal/transport"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// one hour of history at the default 5s sample interval
const historySize = 720

func main() {
	err := start()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	os.Exit(0)
}

func start() error {
	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		return err
	}

	log, err := lib.NewLogger(cfg.Log.LevelApp, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, cfg.Log.FolderPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Infof("bitaxepid %s, device %s", config.BuildVersion, cfg.Device.Address)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	envelope := tuner.Envelope{
		MinVoltage:    cfg.Tuner.MinVoltage,
		MaxVoltage:    cfg.Tuner.MaxVoltage,
		VoltageStep:   cfg.Tuner.VoltageStep,
		MinFrequency:  cfg.Tuner.MinFrequency,
		MaxFrequency:  cfg.Tuner.MaxFrequency,
		FrequencyStep: cfg.Tuner.FrequencyStep,
	}
	targets := tuner.Targets{
		TargetTemp:       cfg.Tuner.TargetTemp,
		PowerLimit:       cfg.Tuner.PowerLimit,
		HashrateSetpoint: cfg.Tuner.HashrateSetpoint,
	}
	gains := tuner.Gains{
		FreqKP: cfg.PID.FreqKP,
		FreqKI: cfg.PID.FreqKI,
		FreqKD: cfg.PID.FreqKD,
		VoltKP: cfg.PID.VoltKP,
		VoltKI: cfg.PID.VoltKI,
		VoltKD: cfg.PID.VoltKD,
	}

	var strategy tuner.Strategy
	if cfg.Tuner.TempWatch {
		strategy = tuner.NewTempWatch(envelope, targets, log.Named("TEMPWATCH"))
	} else {
		strategy = tuner.NewController(envelope, targets, gains, cfg.Tuner.SampleInterval, log.Named("TUNER"))
	}

	digests := pools.NewDigestStore(cfg.Pool.DigestDir, log.Named("DIGEST"))
	prober := pools.NewProber(digests, cfg.Pool.ProbeCount, cfg.Pool.ProbeTimeout, log.Named("PROBE"))
	registry := pools.NewRegistry(cfg.Pool.CatalogPath, cfg.Pool.FreshnessWindow, prober, log.Named("POOLS"))
	if err := registry.Load(); err != nil {
		return err
	}
	users := pools.LoadUserFile(cfg.Pool.UsersPath, log.Named("POOLS"))

	gateway := axeos.NewClient(cfg.Device.Address, envelope, axeos.DefaultRetryPolicy(), log.Named("AXEOS"))

	snapshot := orchestrator.NewSnapshotManager(cfg.Files.SnapshotPath, log.Named("SNAPSHOT"))
	initialPoint := snapshot.Load(tuner.OperatingPoint{
		Voltage:   cfg.Tuner.InitialVoltage,
		Frequency: cfg.Tuner.InitialFrequency,
	})

	tuningLog := orchestrator.NewTuningLog(cfg.Files.TuningLog, gains, envelope, targets, cfg.Tuner.SampleInterval, log.Named("CSV"))

	statsRegistry := stats.NewRegistry(historySize)
	promRegistry := prometheus.NewRegistry()
	metrics := stats.NewMetrics(promRegistry)

	orch := orchestrator.NewOrchestrator(
		orchestrator.Config{
			Envelope:       envelope,
			Targets:        targets,
			Gains:          gains,
			SampleInterval: cfg.Tuner.SampleInterval,
			InitialPoint:   initialPoint,
			ExplicitUser:   cfg.Pool.User,
			ForceMeasure:   cfg.Pool.ForceMeasure,
		},
		gateway, registry, strategy, users,
		snapshot, tuningLog, statsRegistry, metrics,
		log.Named("ORCH"),
	)

	g, errCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(errCtx)
	})

	g.Go(func() error {
		return registry.Run(errCtx)
	})

	if cfg.Web.Address != "" {
		handl := handlers.NewHTTPHandler(statsRegistry, registry, promRegistry, log.Named("HTTP"))
		server := transport.NewServer(cfg.Web.Address, handl, log.Named("HTTP"))
		g.Go(func() error {
			return server.Run(errCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("App exited")
		return nil
	}
	return err
}
