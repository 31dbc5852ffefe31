package drone

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// DroneSpeed is the per-tick step length of the motion task, in the same
// flat-plane units as geo.Location (spec §4.7).
const DroneSpeed = 0.001

// Default rates, overridden by a loaded drone_config.json.
const (
	DefaultChargeRateMillis    = 500
	DefaultDischargeRateMillis = 500
	DefaultOperationRadius     = 0.01
	DefaultMotionTickRate      = 500 * time.Millisecond // ~2 Hz

	// DefaultResolveDelay is the simulated on-scene handling window between
	// a two-drone consensus and the incident_resolved publication.
	DefaultResolveDelay = 10 * time.Second

	// LowBatteryThreshold is the battery level at which Waiting transitions
	// to LowBattery.
	LowBatteryThreshold = 20

	// DefaultResumeBatteryLevel is the battery level at which Charging
	// transitions back to Waiting. The original simulator carries this as
	// a separate, configurable knob from the LowBattery entry threshold
	// even though both default to the same round numbers (100 and 20).
	DefaultResumeBatteryLevel = 100
)

// Config configures a Drone and the DroneCenter that owns it. Field names
// mirror drone_config.json (spec §6): battery_charge_rate_milisecs,
// battery_discharge_rate_milisecs, operation_radius, movement_rate.
type Config struct {
	ChargeRateMillis    int64
	DischargeRateMillis int64
	OperationRadius     float64
	MotionTickRate      time.Duration
	ResumeBatteryLevel  int
	ResolveDelay        time.Duration

	// MovementRate is read from drone_config.json's km/h field and kept on
	// the config; spec §4.7 fixes the actual per-tick step at DroneSpeed
	// regardless of this value, so it has no effect on motion. The config
	// file is only read, never written back.
	MovementRate int64

	Logger *slog.Logger
}

// droneConfigFile is the on-disk shape of drone_config.json (spec §6).
type droneConfigFile struct {
	ChargeRateMillis    int64   `json:"battery_charge_rate_milisecs"`
	DischargeRateMillis int64   `json:"battery_discharge_rate_milisecs"`
	OperationRadius     float64 `json:"operation_radius"`
	MovementRate        int64   `json:"movement_rate"`
}

// LoadConfigFile reads a drone_config.json and returns the Config it
// describes. Rates not present in the schema (MotionTickRate,
// ResumeBatteryLevel, ResolveDelay) keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("drone: reading config file %s: %w", path, err)
	}
	var f droneConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("drone: parsing config file %s: %w", path, err)
	}
	return Config{
		ChargeRateMillis:    f.ChargeRateMillis,
		DischargeRateMillis: f.DischargeRateMillis,
		OperationRadius:     f.OperationRadius,
		MovementRate:        f.MovementRate,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.ChargeRateMillis == 0 {
		c.ChargeRateMillis = DefaultChargeRateMillis
	}
	if c.DischargeRateMillis == 0 {
		c.DischargeRateMillis = DefaultDischargeRateMillis
	}
	if c.OperationRadius == 0 {
		c.OperationRadius = DefaultOperationRadius
	}
	if c.MotionTickRate == 0 {
		c.MotionTickRate = DefaultMotionTickRate
	}
	if c.ResumeBatteryLevel == 0 {
		c.ResumeBatteryLevel = DefaultResumeBatteryLevel
	}
	if c.ResolveDelay == 0 {
		c.ResolveDelay = DefaultResolveDelay
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(discard{}, nil))
	}
	return c
}
