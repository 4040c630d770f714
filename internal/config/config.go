package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Subject  SubjectConfig  `mapstructure:"subject"`
	Detector DetectorConfig `mapstructure:"detector"`
	Stride   StrideConfig   `mapstructure:"stride"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SubjectConfig selects whose settings and calibration are used
type SubjectConfig struct {
	ID string `mapstructure:"id"`
}

// DetectorConfig tunes the step detector. Sensitivity, when set (1-10),
// overrides Threshold.
type DetectorConfig struct {
	Threshold           float64 `mapstructure:"threshold"`
	TimeInterval        string  `mapstructure:"time_interval"`
	SmoothingFactor     float64 `mapstructure:"smoothing_factor"`
	UseHardwareSensor   bool    `mapstructure:"use_hardware_sensor"`
	StillnessThreshold  float64 `mapstructure:"stillness_threshold"`
	StillnessWindowSize int     `mapstructure:"stillness_window_size"`
	Sensitivity         int     `mapstructure:"sensitivity"`
	HardwareTimeout     string  `mapstructure:"hardware_timeout"`
}

// StrideConfig defines stride estimation defaults
type StrideConfig struct {
	DefaultHeightCm float64 `mapstructure:"default_height_cm"`
	HistoryLimit    int     `mapstructure:"history_limit"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Path      string      `mapstructure:"path"`
	Type      string      `mapstructure:"type"` // "bolt" or "redis"
	CacheSize int         `mapstructure:"cache_size"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the redis connection
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// MQTTConfig defines the broker carrying motion samples and hardware
// step counter events
type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MotionTopic     string `mapstructure:"motion_topic"`
	StepTopic       string `mapstructure:"step_topic"`
	ControlTopic    string `mapstructure:"control_topic"`
	QoS             int    `mapstructure:"qos"`
	HardwareCounter bool   `mapstructure:"hardware_counter"` // a device publishes on step_topic
	BufferSize      int    `mapstructure:"buffer_size"`
	ConnectTimeout  string `mapstructure:"connect_timeout"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	LivePort    int    `mapstructure:"live_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LiveFanout  bool   `mapstructure:"live_fanout"` // mirror live state over redis pub/sub
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PUTTSTEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("subject.id", "default")

	// Detector defaults
	v.SetDefault("detector.threshold", 2.0)
	v.SetDefault("detector.time_interval", "300ms")
	v.SetDefault("detector.smoothing_factor", 0.2)
	v.SetDefault("detector.use_hardware_sensor", true)
	v.SetDefault("detector.stillness_threshold", 0.15)
	v.SetDefault("detector.stillness_window_size", 10)
	v.SetDefault("detector.sensitivity", 0)
	v.SetDefault("detector.hardware_timeout", "5s")

	// Stride defaults
	v.SetDefault("stride.default_height_cm", 170)
	v.SetDefault("stride.history_limit", 10)

	// Storage defaults
	v.SetDefault("storage.path", "/var/lib/puttstep/puttstep.bolt")
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.cache_size", 64)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "puttstep")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.motion_topic", "puttstep/motion")
	v.SetDefault("mqtt.step_topic", "puttstep/steps")
	v.SetDefault("mqtt.control_topic", "puttstep/steps/control")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.hardware_counter", false)
	v.SetDefault("mqtt.buffer_size", 256)
	v.SetDefault("mqtt.connect_timeout", "10s")

	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.live_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.live_fanout", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Subject.ID == "" {
		return fmt.Errorf("subject id is required")
	}

	if cfg.Detector.SmoothingFactor <= 0 || cfg.Detector.SmoothingFactor > 1 {
		return fmt.Errorf("invalid smoothing factor: %v", cfg.Detector.SmoothingFactor)
	}
	if cfg.Detector.Threshold < 0 {
		return fmt.Errorf("invalid threshold: %v", cfg.Detector.Threshold)
	}
	if cfg.Detector.StillnessWindowSize < 1 {
		return fmt.Errorf("invalid stillness window size: %d", cfg.Detector.StillnessWindowSize)
	}
	if cfg.Detector.StillnessThreshold < 0 {
		return fmt.Errorf("invalid stillness threshold: %v", cfg.Detector.StillnessThreshold)
	}
	if cfg.Detector.Sensitivity < 0 || cfg.Detector.Sensitivity > 10 {
		return fmt.Errorf("sensitivity must be between 1 and 10 (0 to use threshold): %d", cfg.Detector.Sensitivity)
	}
	if d, err := time.ParseDuration(cfg.Detector.TimeInterval); err != nil {
		return fmt.Errorf("invalid detector time_interval: %w", err)
	} else if d < 0 {
		return fmt.Errorf("detector time_interval must not be negative: %s", cfg.Detector.TimeInterval)
	}
	if d, err := time.ParseDuration(cfg.Detector.HardwareTimeout); err != nil {
		return fmt.Errorf("invalid detector hardware_timeout: %w", err)
	} else if d < 0 {
		return fmt.Errorf("detector hardware_timeout must not be negative: %s", cfg.Detector.HardwareTimeout)
	}

	if cfg.Stride.HistoryLimit < 1 {
		return fmt.Errorf("invalid calibration history limit: %d", cfg.Stride.HistoryLimit)
	}

	if cfg.Server.LivePort <= 0 || cfg.Server.LivePort > 65535 {
		return fmt.Errorf("invalid live port: %d", cfg.Server.LivePort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", cfg.MQTT.QoS)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	return nil
}

// Defaults returns the configuration used when no file or environment
// overrides are present. It is not validated.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys lists keys in the config file that no setting reads.
func UnknownKeys(configPath string) ([]string, error) {
	known := viper.New()
	setDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var unknown []string
	for _, key := range file.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// ParseDuration parses a duration string, returning fallback when the
// string is empty or invalid
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
