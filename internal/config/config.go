package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete drclink configuration.
type Config struct {
	Broker   BrokerConfig  `yaml:"broker"`
	HostAddr string        `yaml:"host_addr"`
	Gateways []string      `yaml:"gateways"`
	DRC      DRCConfig     `yaml:"drc"`
	Live     LiveConfig    `yaml:"live"`
	FlyTo    FlyToConfig   `yaml:"flyto"`
	Timing   Timing        `yaml:"timing"`
	Record   RotateConfig  `yaml:"record"`
	Log      RotateConfig  `yaml:"log"`
	Routes   []RouteConfig `yaml:"routes"`
}

// BrokerConfig holds the MQTT connection settings shared by every vehicle connection.
type BrokerConfig struct {
	Address        string `yaml:"address"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	PrivateKeyPath string `yaml:"private_key"`
	ClientPrefix   string `yaml:"client_prefix"`
}

// DRCConfig holds direct remote control parameters.
type DRCConfig struct {
	HeartbeatFreq float64       `yaml:"heartbeat_freq"`
	OSDFrequency  int           `yaml:"osd_frequency"`
	HSIFrequency  int           `yaml:"hsi_frequency"`
	PayloadIndex  string        `yaml:"payload_index"`
	UserCallsign  string        `yaml:"user_callsign"`
	UserID        string        `yaml:"user_id"`
	BrokerSecret  string        `yaml:"broker_secret"`
	TokenLifetime time.Duration `yaml:"token_lifetime"`
}

// LiveConfig holds live stream parameters.
type LiveConfig struct {
	RTMPBase     string `yaml:"rtmp_base"`
	VideoQuality int    `yaml:"video_quality"`
}

// FlyToConfig holds fly-to parameters.
type FlyToConfig struct {
	MaxSpeed float64 `yaml:"max_speed"`
}

// Timing holds every wall-clock limit of the poll loops.
type Timing struct {
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	ProgressTimeout time.Duration `yaml:"progress_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	AscendWatchdog  time.Duration `yaml:"ascend_watchdog"`
	LandTimeout     time.Duration `yaml:"land_timeout"`
}

// RotateConfig describes a size-rotated output file.
type RotateConfig struct {
	Dir        string `yaml:"dir"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// RouteConfig is a preset waypoint list. Points come either inline or from File.
type RouteConfig struct {
	Name   string        `yaml:"name"`
	File   string        `yaml:"file"`
	Height float64       `yaml:"height"`
	Points []PointConfig `yaml:"points"`
}

// PointConfig is one inline waypoint.
type PointConfig struct {
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	Height float64 `yaml:"height"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			ClientPrefix: "drclink",
		},
		DRC: DRCConfig{
			HeartbeatFreq: 1.0,
			OSDFrequency:  50,
			HSIFrequency:  1,
			PayloadIndex:  "88-0-0",
			UserCallsign:  "drclink",
			UserID:        "123456",
			TokenLifetime: 24 * time.Hour,
		},
		Live: LiveConfig{
			VideoQuality: 1,
		},
		FlyTo: FlyToConfig{
			MaxSpeed: 12,
		},
		Timing: DefaultTiming(),
		Record: RotateConfig{
			Dir:        "out",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Log: RotateConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// DefaultTiming returns the timeouts the vehicles are known to need.
func DefaultTiming() Timing {
	return Timing{
		AckTimeout:      10 * time.Second,
		ProgressTimeout: 10 * time.Second,
		PollInterval:    100 * time.Millisecond,
		AscendWatchdog:  10 * time.Second,
		LandTimeout:     30 * time.Second,
	}
}

// Load merges defaults, the YAML file at path (if path is not empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, errors.WithMessagef(err, "Could not load config %s", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, errors.WithMessage(err, "Invalid configuration")
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOST_ADDR"); v != "" {
		cfg.HostAddr = v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("DRCLINK_BROKER"); v != "" {
		cfg.Broker.Address = v
	}
	if cfg.Broker.Address == "" && cfg.HostAddr != "" {
		cfg.Broker.Address = "tcp://" + cfg.HostAddr + ":1883"
	}
}

// Validate checks that the configuration can drive at least one vehicle.
func Validate(cfg *Config) error {
	if len(cfg.Gateways) == 0 {
		return errors.New("at least one gateway serial must be configured")
	}
	seen := make(map[string]bool)
	for _, sn := range cfg.Gateways {
		if sn == "" {
			return errors.New("empty gateway serial")
		}
		if seen[sn] {
			return errors.Errorf("duplicate gateway serial %s", sn)
		}
		seen[sn] = true
	}

	if cfg.DRC.HeartbeatFreq <= 0 {
		return errors.Errorf("heartbeat frequency %v must be positive", cfg.DRC.HeartbeatFreq)
	}
	if cfg.Live.VideoQuality < 0 || cfg.Live.VideoQuality > 4 {
		return errors.Errorf("video quality %d is outside [0, 4]", cfg.Live.VideoQuality)
	}

	t := cfg.Timing
	if t.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if t.AckTimeout < t.PollInterval || t.ProgressTimeout < t.PollInterval {
		return errors.New("fly-to timeouts must be longer than the poll interval")
	}
	if t.AscendWatchdog <= 0 || t.LandTimeout <= 0 {
		return errors.New("ascend watchdog and land timeout must be positive")
	}

	for i, r := range cfg.Routes {
		if r.File == "" && len(r.Points) == 0 {
			return errors.Errorf("route %d (%s) has neither file nor points", i+1, r.Name)
		}
	}

	return nil
}
