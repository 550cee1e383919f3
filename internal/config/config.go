package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Transport drivers.
const (
	DriverSerial = "serial"
	DriverRTU    = "rtu"
	DriverSim    = "sim"
)

var configPaths = []string{
	"./seplos.yaml",
	"./seplos.yml",
	"~/.config/seplos/config.yaml",
	"/etc/seplos/config.yaml",
}

type Config struct {
	Serial Serial         `yaml:"serial"`
	Modbus Modbus         `yaml:"modbus"`
	Poll   Poll           `yaml:"poll"`
	Write  Write          `yaml:"write"`
	MQTT   MQTT           `yaml:"mqtt"`
	HTTP   HTTP           `yaml:"http"`
	Audit  Audit          `yaml:"audit"`
	Log    logging.Config `yaml:"log"`
}

type Serial struct {
	Driver   string `yaml:"driver" validate:"oneof=serial rtu sim"`
	Port     string `yaml:"port" validate:"required_unless=Driver sim"`
	BaudRate int    `yaml:"baud_rate" validate:"oneof=1200 2400 4800 9600 19200 38400 57600 115200"`
	DataBits int    `yaml:"data_bits" validate:"oneof=7 8"`
	Parity   string `yaml:"parity" validate:"oneof=N E O"`
	StopBits int    `yaml:"stop_bits" validate:"oneof=1 2"`
}

type Modbus struct {
	SlaveID    uint8         `yaml:"slave_id" validate:"lte=247"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	Backoff    time.Duration `yaml:"backoff" validate:"gte=0"`
	BackoffMax time.Duration `yaml:"backoff_max" validate:"gte=0"`
}

type Poll struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Deadband float64       `yaml:"deadband" validate:"gte=0"`
}

type Write struct {
	Guard     bool    `yaml:"guard"`
	MaxChange float64 `yaml:"max_change" validate:"gt=0,lte=1"`
}

type MQTT struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	ClientID        string `yaml:"client_id" validate:"required_if=Enabled true"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TLS             bool   `yaml:"tls"`
	Prefix          string `yaml:"prefix" validate:"required"`
	DiscoveryPrefix string `yaml:"discovery_prefix" validate:"required"`
	BatteryID       string `yaml:"battery_id" validate:"required,alphanum"`
	// RepublishEvery forces a full publish every n cycles, 0 never.
	RepublishEvery int  `yaml:"republish_every" validate:"gte=0"`
	QoS            byte `yaml:"qos" validate:"lte=2"`
}

type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"required_if=Enabled true"`
}

type Audit struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

func Default() *Config {
	return &Config{
		Serial: Serial{
			Driver:   DriverSerial,
			Port:     "/dev/ttyUSB0",
			BaudRate: 19200,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
		},
		Modbus: Modbus{
			SlaveID:    0,
			Timeout:    500 * time.Millisecond,
			MaxRetries: 3,
			Backoff:    100 * time.Millisecond,
			BackoffMax: time.Second,
		},
		Poll: Poll{
			Interval: 2 * time.Second,
			Deadband: 0.003,
		},
		Write: Write{
			Guard:     true,
			MaxChange: 0.2,
		},
		MQTT: MQTT{
			ClientID:        "seplos-bms",
			Prefix:          "seplos",
			DiscoveryPrefix: "homeassistant",
			BatteryID:       "0",
			RepublishEvery:  30,
		},
		HTTP: HTTP{
			Listen: ":9108",
		},
		Audit: Audit{
			Path: "seplos-audit.db",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path, or the first file found on the search path, over the defaults.
// Environment variables override the file. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = find()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func find() string {
	for _, p := range configPaths {
		if strings.HasPrefix(p, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			p = filepath.Join(home, p[2:])
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Save writes cfg as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyEnv(cfg *Config) error {
	cfg.Serial.Driver = getEnvDefault("SEPLOS_DRIVER", cfg.Serial.Driver)
	cfg.Serial.Port = getEnvDefault("SEPLOS_PORT", cfg.Serial.Port)
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("SEPLOS_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SEPLOS_BAUD %q: %w", ErrInvalid, v, err)
		}
		cfg.Serial.BaudRate = n
	}
	if v := os.Getenv("SEPLOS_SLAVE_ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: SEPLOS_SLAVE_ID %q: %w", ErrInvalid, v, err)
		}
		cfg.Modbus.SlaveID = uint8(n)
	}
	if v := os.Getenv("SEPLOS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SEPLOS_INTERVAL %q: %w", ErrInvalid, v, err)
		}
		cfg.Poll.Interval = d
	}

	if v := os.Getenv("MQTT_URL"); v != "" {
		cfg.MQTT.URL = v
		cfg.MQTT.Enabled = true
	}
	cfg.MQTT.ClientID = getEnvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnvDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	if v := os.Getenv("MQTT_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MQTT_TLS %q: %w", ErrInvalid, v, err)
		}
		cfg.MQTT.TLS = b
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
