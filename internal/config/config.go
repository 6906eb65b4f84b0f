// Package config loads the hamm configuration file and applies HAMM_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/kuretru/ha-minimqtt/internal/utils"
)

// Supported transports.
const (
	TransportMQTT5   = "mqtt5"
	TransportMQTT311 = "mqtt311"
)

// DefaultSearchPaths returns the config file search order: ./hamm.yaml,
// ~/.config/hamm/hamm.yaml, /etc/hamm/hamm.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hamm.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hamm", "hamm.yaml"))
	}
	return append(paths, "/etc/hamm/hamm.yaml")
}

// FindConfig locates a config file. An explicit path must exist; otherwise
// the first existing DefaultSearchPaths entry wins.
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

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Keepalive uint16 `yaml:"keepalive"`
}

// URL returns the broker address with the given scheme, e.g. mqtt or tcp.
func (c MQTTConfig) URL(scheme string) *url.URL {
	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(c.Broker, strconv.Itoa(c.Port))}
}

// DeviceConfig names the device the entities belong to. An empty
// identifier falls back to the host name.
type DeviceConfig struct {
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	Identifier   string `yaml:"identifier"`
}

// LoopConfig is expressed in (fractional) seconds.
type LoopConfig struct {
	Sleep          float64 `yaml:"sleep"`
	Timeout        float64 `yaml:"timeout"`
	ReconnectDelay float64 `yaml:"reconnect_delay"`
	// StateInterval republishes all states periodically; zero disables it.
	StateInterval float64 `yaml:"state_interval"`
}

func (c LoopConfig) SleepDuration() time.Duration          { return utils.Seconds(c.Sleep) }
func (c LoopConfig) TimeoutDuration() time.Duration        { return utils.Seconds(c.Timeout) }
func (c LoopConfig) ReconnectDelayDuration() time.Duration { return utils.Seconds(c.ReconnectDelay) }
func (c LoopConfig) StateIntervalDuration() time.Duration  { return utils.Seconds(c.StateInterval) }

type Config struct {
	Transport       string       `yaml:"transport"`
	MQTT            MQTTConfig   `yaml:"mqtt"`
	Device          DeviceConfig `yaml:"device"`
	Loop            LoopConfig   `yaml:"loop"`
	TopicPrefix     string       `yaml:"topic_prefix"`
	DiscoveryPrefix string       `yaml:"discovery_prefix"`
	MetricsListen   string       `yaml:"metrics_listen"`
	LogLevel        string       `yaml:"log_level"`
}

// Default returns a configuration that talks to a broker on localhost.
func Default() *Config {
	return &Config{
		Transport: TransportMQTT5,
		MQTT: MQTTConfig{
			Broker:    "localhost",
			Port:      1883,
			ClientID:  "hamm-" + strings.SplitN(uuid.NewString(), "-", 2)[0],
			Keepalive: 30,
		},
		Device: DeviceConfig{
			Manufacturer: "hamm",
			Model:        "ha-minimqtt",
		},
		Loop: LoopConfig{
			Sleep:          0.1,
			Timeout:        1,
			ReconnectDelay: 5,
			StateInterval:  300,
		},
		TopicPrefix:     "hamm",
		DiscoveryPrefix: "homeassistant",
		LogLevel:        "info",
	}
}

// Load reads path over the defaults, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HAMM_* variables found through lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HAMM_BROKER":           &c.MQTT.Broker,
		"HAMM_CLIENT_ID":        &c.MQTT.ClientID,
		"HAMM_USERNAME":         &c.MQTT.Username,
		"HAMM_PASSWORD":         &c.MQTT.Password,
		"HAMM_TOPIC_PREFIX":     &c.TopicPrefix,
		"HAMM_DISCOVERY_PREFIX": &c.DiscoveryPrefix,
		"HAMM_TRANSPORT":        &c.Transport,
		"HAMM_DEVICE_ID":        &c.Device.Identifier,
		"HAMM_LOG_LEVEL":        &c.LogLevel,
	}
	for key, field := range strs {
		if value, ok := lookup(key); ok {
			*field = value
		}
	}

	var errs []error
	if value, ok := lookup("HAMM_BROKER_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("HAMM_BROKER_PORT: %w", err))
		} else {
			c.MQTT.Port = port
		}
	}
	floats := map[string]*float64{
		"HAMM_LOOP_SLEEP":      &c.Loop.Sleep,
		"HAMM_LOOP_TIMEOUT":    &c.Loop.Timeout,
		"HAMM_RECONNECT_DELAY": &c.Loop.ReconnectDelay,
		"HAMM_STATE_INTERVAL":  &c.Loop.StateInterval,
	}
	for key, field := range floats {
		if value, ok := lookup(key); ok {
			parsed, err := utils.ParseFloat(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*field = parsed
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		errs = append(errs, errors.New("mqtt.broker must not be empty"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if strings.TrimSpace(c.MQTT.ClientID) == "" {
		errs = append(errs, errors.New("mqtt.client_id must not be empty"))
	}
	if c.Transport != TransportMQTT5 && c.Transport != TransportMQTT311 {
		errs = append(errs, fmt.Errorf("unknown transport %q (valid: %s, %s)", c.Transport, TransportMQTT5, TransportMQTT311))
	}
	if c.Loop.Sleep <= 0 {
		errs = append(errs, errors.New("loop.sleep must be positive"))
	}
	if c.Loop.Timeout <= 0 {
		errs = append(errs, errors.New("loop.timeout must be positive"))
	}
	if c.Loop.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("loop.reconnect_delay must be positive"))
	}
	if c.Loop.StateInterval < 0 {
		errs = append(errs, errors.New("loop.state_interval must not be negative"))
	}
	for name, prefix := range map[string]string{"topic_prefix": c.TopicPrefix, "discovery_prefix": c.DiscoveryPrefix} {
		if prefix == "" || strings.ContainsAny(prefix, "+#") {
			errs = append(errs, fmt.Errorf("%s %q must be a non-empty topic without wildcards", name, prefix))
		}
	}
	if c.Device.Manufacturer == "" || c.Device.Model == "" {
		errs = append(errs, errors.New("device.manufacturer and device.model are required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
