package robot

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

const DefaultConfigFile = "mearm.json"

// Transports understood by the CLI.
const (
	TransportGPIO    = "gpio"
	TransportPCA9685 = "pca9685"
	TransportFeetech = "feetech"
	TransportI2C     = "i2c"
	TransportSim     = "sim"
)

// Config holds the arm configuration.
type Config struct {
	Transport   string        `json:"transport"`
	Calibration Calibration   `json:"calibration"`
	Joints      JointsConfig  `json:"joints"`
	HomeOnStart bool          `json:"home_on_start"`
	Lease       LeaseConfig   `json:"lease"`
	Bus         BusConfig     `json:"bus"`
	PCA9685     PCA9685Config `json:"pca9685"`
	Feetech     FeetechConfig `json:"feetech"`
}

// LeaseConfig configures the control lease.
type LeaseConfig struct {
	DurationSeconds int `json:"duration_seconds"`
	SweepIntervalMS int `json:"sweep_interval_ms"`
}

func (c LeaseConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

func (c LeaseConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// BusConfig configures the I²C register bus to the arm controller.
type BusConfig struct {
	Name      string `json:"name"`
	Address   uint16 `json:"address"`
	SettleMS  int    `json:"settle_ms"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (c BusConfig) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

func (c BusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// PCA9685Config configures a PCA9685 PWM board.
type PCA9685Config struct {
	Bus     string `json:"bus"`
	Address uint16 `json:"address"`
}

// FeetechConfig configures a Feetech serial servo bus.
type FeetechConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

// DefaultConfig returns the stock MeArm layout: four hobby servos on GPIO
// pins 4, 17, 27 and 22 with the base reversed.
func DefaultConfig() *Config {
	return &Config{
		Transport:   TransportGPIO,
		Calibration: DefaultCalibration(),
		Joints: JointsConfig{
			Base:     JointConfig{Channel: 4, Min: 0, Max: 180, Home: 90, Invert: true},
			Shoulder: JointConfig{Channel: 17, Min: 50, Max: 140, Home: 90},
			Wrist:    JointConfig{Channel: 27, Min: 50, Max: 140, Home: 90},
			Grip:     JointConfig{Channel: 22, Min: 80, Max: 100, Home: 90},
		},
		HomeOnStart: true,
		Lease:       LeaseConfig{DurationSeconds: 60, SweepIntervalMS: 500},
		Bus:         BusConfig{Address: 42, SettleMS: 100, TimeoutMS: 2000},
		PCA9685:     PCA9685Config{Address: 0x40},
		Feetech:     FeetechConfig{Port: "/dev/ttyUSB0", BaudRate: 1_000_000},
	}
}

// Arm returns the arm section of the configuration.
func (c *Config) Arm() ArmConfig {
	return ArmConfig{
		Calibration: c.Calibration,
		Joints:      c.Joints,
		HomeOnStart: c.HomeOnStart,
	}
}

// Validate fills in defaults for zero values and checks the arm section.
func (c *Config) Validate() error {
	def := DefaultConfig()

	switch c.Transport {
	case "":
		c.Transport = def.Transport
	case TransportGPIO, TransportPCA9685, TransportFeetech, TransportI2C, TransportSim:
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}

	if c.Calibration == (Calibration{}) {
		c.Calibration = def.Calibration
	}
	if c.Lease.DurationSeconds <= 0 {
		c.Lease.DurationSeconds = def.Lease.DurationSeconds
	}
	if c.Lease.SweepIntervalMS <= 0 {
		c.Lease.SweepIntervalMS = def.Lease.SweepIntervalMS
	}
	if c.Bus.Address == 0 {
		c.Bus.Address = def.Bus.Address
	}
	if c.Bus.SettleMS <= 0 {
		c.Bus.SettleMS = def.Bus.SettleMS
	}
	if c.Bus.TimeoutMS <= 0 {
		c.Bus.TimeoutMS = def.Bus.TimeoutMS
	}
	if c.PCA9685.Address == 0 {
		c.PCA9685.Address = def.PCA9685.Address
	}
	if c.Feetech.BaudRate == 0 {
		c.Feetech.BaudRate = def.Feetech.BaudRate
	}

	return c.Arm().Validate()
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads and validates configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
