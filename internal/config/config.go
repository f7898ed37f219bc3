package config

import (
	"time"
)

const BuildVersion = "1.2.0"

type ConfigWithDefaults interface {
	SetDefaults()
}

type Config struct {
	Device struct {
		Address string `env:"DEVICE_ADDRESS" flag:"device-address" desc:"ip address or hostname of the miner control api" validate:"required"`
	}
	Tuner struct {
		InitialVoltage   int           `env:"TUNER_INITIAL_VOLTAGE" flag:"initial-voltage" desc:"initial core voltage, mV"`
		InitialFrequency int           `env:"TUNER_INITIAL_FREQUENCY" flag:"initial-frequency" desc:"initial frequency, MHz"`
		MinVoltage       int           `env:"TUNER_MIN_VOLTAGE" flag:"min-voltage"`
		MaxVoltage       int           `env:"TUNER_MAX_VOLTAGE" flag:"max-voltage"`
		VoltageStep      int           `env:"TUNER_VOLTAGE_STEP" flag:"voltage-step" validate:"omitempty,gt=0"`
		MinFrequency     int           `env:"TUNER_MIN_FREQUENCY" flag:"min-frequency"`
		MaxFrequency     int           `env:"TUNER_MAX_FREQUENCY" flag:"max-frequency"`
		FrequencyStep    int           `env:"TUNER_FREQUENCY_STEP" flag:"frequency-step" validate:"omitempty,gt=0"`
		TargetTemp       float64       `env:"TUNER_TARGET_TEMP" flag:"target-temp" desc:"target chip temperature, celsius"`
		PowerLimit       float64       `env:"TUNER_POWER_LIMIT" flag:"power-limit" desc:"power ceiling, watts"`
		HashrateSetpoint float64       `env:"TUNER_HASHRATE_SETPOINT" flag:"hashrate-setpoint" desc:"target hashrate, GH/s"`
		SampleInterval   time.Duration `env:"TUNER_SAMPLE_INTERVAL" flag:"sample-interval"`
		TempWatch        bool          `env:"TUNER_TEMP_WATCH" flag:"temp-watch" desc:"temperature walk-down mode, no hashrate optimization"`
	}
	PID struct {
		FreqKP float64 `env:"PID_FREQ_KP" flag:"pid-freq-kp"`
		FreqKI float64 `env:"PID_FREQ_KI" flag:"pid-freq-ki"`
		FreqKD float64 `env:"PID_FREQ_KD" flag:"pid-freq-kd"`
		VoltKP float64 `env:"PID_VOLT_KP" flag:"pid-volt-kp"`
		VoltKI float64 `env:"PID_VOLT_KI" flag:"pid-volt-ki"`
		VoltKD float64 `env:"PID_VOLT_KD" flag:"pid-volt-kd"`
	}
	Pool struct {
		CatalogPath     string        `env:"POOL_CATALOG_PATH" flag:"pool-catalog" desc:"pool catalog yaml document"`
		UsersPath       string        `env:"POOL_USERS_PATH" flag:"pool-users" desc:"per-pool default users yaml"`
		User            string        `env:"POOL_USER" flag:"pool-user" desc:"explicit stratum user, overrides users file and device"`
		DigestDir       string        `env:"POOL_DIGEST_DIR" flag:"pool-digest-dir" desc:"directory for per-endpoint latency digests"`
		FreshnessWindow time.Duration `env:"POOL_FRESHNESS_WINDOW" flag:"pool-freshness-window"`
		ProbeCount      int           `env:"POOL_PROBE_COUNT" flag:"pool-probe-count" validate:"omitempty,gt=0"`
		ProbeTimeout    time.Duration `env:"POOL_PROBE_TIMEOUT" flag:"pool-probe-timeout"`
		ForceMeasure    bool          `env:"POOL_FORCE_MEASURE" flag:"pool-force-measure" desc:"remeasure all catalog rows at startup"`
	}
	Files struct {
		SnapshotPath string `env:"FILE_SNAPSHOT_PATH" flag:"snapshot-path"`
		TuningLog    string `env:"FILE_TUNING_LOG" flag:"tuning-log"`
	}
	Web struct {
		Address string `env:"WEB_ADDRESS" flag:"web-address" desc:"metrics server listen address, empty disables"`
	}
	Log struct {
		Color      bool   `env:"LOG_COLOR" flag:"log-color"`
		IsProd     bool   `env:"LOG_IS_PROD" flag:"log-is-prod"`
		JSON       bool   `env:"LOG_JSON" flag:"log-json"`
		LevelApp   string `env:"LOG_LEVEL_APP" flag:"log-level-app"`
		FolderPath string `env:"LOG_FOLDER_PATH" flag:"log-folder-path"`
	}
}

func (cfg *Config) SetDefaults() {
	// bounds and setpoints match the stock envelope of the BM1366 board
	if cfg.Tuner.InitialVoltage == 0 {
		cfg.Tuner.InitialVoltage = 1200
	}
	if cfg.Tuner.InitialFrequency == 0 {
		cfg.Tuner.InitialFrequency = 500
	}
	if cfg.Tuner.MinVoltage == 0 {
		cfg.Tuner.MinVoltage = 1100
	}
	if cfg.Tuner.MaxVoltage == 0 {
		cfg.Tuner.MaxVoltage = 1300
	}
	if cfg.Tuner.VoltageStep == 0 {
		cfg.Tuner.VoltageStep = 10
	}
	if cfg.Tuner.MinFrequency == 0 {
		cfg.Tuner.MinFrequency = 400
	}
	if cfg.Tuner.MaxFrequency == 0 {
		cfg.Tuner.MaxFrequency = 550
	}
	if cfg.Tuner.FrequencyStep == 0 {
		cfg.Tuner.FrequencyStep = 25
	}
	if cfg.Tuner.TargetTemp == 0 {
		cfg.Tuner.TargetTemp = 45.0
	}
	if cfg.Tuner.PowerLimit == 0 {
		cfg.Tuner.PowerLimit = 15.0
	}
	if cfg.Tuner.HashrateSetpoint == 0 {
		cfg.Tuner.HashrateSetpoint = 500
	}
	if cfg.Tuner.SampleInterval == 0 {
		cfg.Tuner.SampleInterval = 5 * time.Second
	}

	if cfg.PID.FreqKP == 0 {
		cfg.PID.FreqKP = 0.2
	}
	if cfg.PID.FreqKI == 0 {
		cfg.PID.FreqKI = 0.01
	}
	if cfg.PID.FreqKD == 0 {
		cfg.PID.FreqKD = 0.02
	}
	if cfg.PID.VoltKP == 0 {
		cfg.PID.VoltKP = 0.1
	}
	if cfg.PID.VoltKI == 0 {
		cfg.PID.VoltKI = 0.01
	}
	if cfg.PID.VoltKD == 0 {
		cfg.PID.VoltKD = 0.02
	}

	if cfg.Pool.CatalogPath == "" {
		cfg.Pool.CatalogPath = "pools.yaml"
	}
	if cfg.Pool.UsersPath == "" {
		cfg.Pool.UsersPath = "users.yaml"
	}
	if cfg.Pool.DigestDir == "" {
		cfg.Pool.DigestDir = "latency"
	}
	if cfg.Pool.FreshnessWindow == 0 {
		cfg.Pool.FreshnessWindow = 15 * time.Minute
	}
	if cfg.Pool.ProbeCount == 0 {
		cfg.Pool.ProbeCount = 5
	}
	if cfg.Pool.ProbeTimeout == 0 {
		cfg.Pool.ProbeTimeout = 3 * time.Second
	}

	if cfg.Files.SnapshotPath == "" {
		cfg.Files.SnapshotPath = "bitaxepid_snapshot.json"
	}
	if cfg.Files.TuningLog == "" {
		cfg.Files.TuningLog = "bitaxepid_tuning_log.csv"
	}

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "info"
	}
}
