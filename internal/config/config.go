// Package config handles BeerPi configuration loading.
//
// Configuration comes from a YAML file discovered via [DefaultSearchPaths],
// with ${VAR} references expanded from the environment. After the file is
// parsed (or when no file exists at all), [ApplyEnv] layers the classic
// flat environment variables on top, so container deployments can run
// without a config file entirely.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/beerpi/config.yaml, /etc/beerpi/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "beerpi", "config.yaml"))
	}

	paths = append(paths, "/etc/beerpi/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all BeerPi configuration.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Database DatabaseConfig `yaml:"database"`
	Sensor   SensorConfig   `yaml:"sensor"`

	// PollIntervalSec is the scheduler tick interval in seconds.
	// Fractional values are allowed.
	PollIntervalSec float64 `yaml:"poll_interval_sec"`

	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" (default) or "json"
}

// MQTTConfig defines the message bus connection and topic layout.
type MQTTConfig struct {
	// Broker is the broker URL (mqtt://, mqtts://, or ssl:// scheme).
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DeviceName is the human-readable Home Assistant device name.
	DeviceName string `yaml:"device_name"`

	// DiscoveryPrefix is the HA MQTT discovery prefix (default "homeassistant").
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// TopicPrefix is the base for all state topics (default "home/beerpi").
	TopicPrefix string `yaml:"topic_prefix"`

	// RawPayloads switches the data topics from JSON envelopes
	// ({"temperature": 21.5}) to bare values ("21.50", "ON").
	RawPayloads bool `yaml:"raw_payloads"`

	// MaxConnectRetries bounds how long the initial connect may block:
	// the session waits at most MaxConnectRetries × RetryDelaySec seconds
	// before degrading to no-bus operation.
	MaxConnectRetries int     `yaml:"max_connect_retries"`
	RetryDelaySec     float64 `yaml:"retry_delay_sec"`
}

// Configured reports whether MQTT publishing is enabled.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// RetryDelay returns the delay between connect attempts as a Duration.
func (c MQTTConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec * float64(time.Second))
}

// InfluxConfig defines the InfluxDB 2.x time-series sink.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// Configured reports whether the time-series sink is enabled.
func (c InfluxConfig) Configured() bool {
	return c.URL != ""
}

// DatabaseConfig defines the relational sink (PostgreSQL).
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Configured reports whether the relational sink is enabled.
func (c DatabaseConfig) Configured() bool {
	return c.Host != ""
}

// ConnString builds a pgx-compatible connection URL.
func (c DatabaseConfig) ConnString() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, port, c.Database, sslmode)
}

// SensorConfig defines hardware paths and the simulated fallback range.
type SensorConfig struct {
	// DeviceDir is the 1-Wire sysfs root searched for DS18B20 devices
	// (default "/sys/bus/w1/devices").
	DeviceDir string `yaml:"device_dir"`

	// GPIODir is the sysfs GPIO root (default "/sys/class/gpio").
	GPIODir string `yaml:"gpio_dir"`

	// RelayPin is the GPIO pin number carrying the relay state (default 27).
	RelayPin int `yaml:"relay_pin"`

	// SimMinC and SimMaxC bound the simulated temperature range in °C
	// (defaults 18.0 and 25.0).
	SimMinC float64 `yaml:"sim_min_c"`
	SimMaxC float64 `yaml:"sim_max_c"`
}

// Interval returns the poll interval as a Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.PollIntervalSec * float64(time.Second))
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			DeviceName:        "beerpi",
			DiscoveryPrefix:   "homeassistant",
			TopicPrefix:       "home/beerpi",
			MaxConnectRetries: 5,
			RetryDelaySec:     5,
		},
		Sensor: SensorConfig{
			DeviceDir: "/sys/bus/w1/devices",
			GPIODir:   "/sys/class/gpio",
			RelayPin:  27,
			SimMinC:   18.0,
			SimMaxC:   25.0,
		},
		PollIntervalSec: 5,
		DataDir:         ".",
	}
}

// ApplyEnv overlays the flat environment variables recognized since the
// original shell-installed deployments. A set variable always wins over
// the YAML value. Returns an error for unparsable numeric values;
// configuration failures are fatal at startup, never silently defaulted.
func ApplyEnv(cfg *Config) error {
	if host, ok := os.LookupEnv("MQTT_BROKER_HOST"); ok {
		port := os.Getenv("MQTT_BROKER_PORT")
		if port == "" {
			port = "1883"
		}
		cfg.MQTT.Broker = "mqtt://" + host + ":" + port
	}
	setString(&cfg.MQTT.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Password, "MQTT_PASSWORD")

	setString(&cfg.Influx.URL, "INFLUX_URL")
	setString(&cfg.Influx.Org, "INFLUX_ORG")
	setString(&cfg.Influx.Bucket, "INFLUX_BUCKET")
	setString(&cfg.Influx.Token, "INFLUX_TOKEN")

	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Database, "DB_DATABASE")

	if err := setFloat(&cfg.PollIntervalSec, "POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&cfg.Sensor.RelayPin, "GPIO_RELAY_PIN"); err != nil {
		return err
	}
	if err := setInt(&cfg.MQTT.MaxConnectRetries, "MAX_CONNECT_RETRIES"); err != nil {
		return err
	}
	if err := setFloat(&cfg.MQTT.RetryDelaySec, "RETRY_DELAY"); err != nil {
		return err
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")

	return nil
}

// Validate rejects configurations the pipeline cannot start with.
func (c *Config) Validate() error {
	if c.PollIntervalSec <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollIntervalSec)
	}
	if c.Sensor.SimMinC > c.Sensor.SimMaxC {
		return fmt.Errorf("simulated range inverted: min %v > max %v",
			c.Sensor.SimMinC, c.Sensor.SimMaxC)
	}
	if c.MQTT.Configured() && c.MQTT.MaxConnectRetries <= 0 {
		return fmt.Errorf("max_connect_retries must be positive, got %d",
			c.MQTT.MaxConnectRetries)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}
