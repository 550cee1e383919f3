package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "seplos.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadFile(t *testing.T) {
	p := writeFile(t, `
serial:
  port: /dev/ttyAMA0
  baud_rate: 9600
modbus:
  timeout: 750ms
  max_retries: 2
poll:
  interval: 5s
mqtt:
  enabled: true
  url: tcp://broker.local:1883
  battery_id: "1"
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "N", cfg.Serial.Parity)
	assert.Equal(t, 750*time.Millisecond, cfg.Modbus.Timeout)
	assert.Equal(t, 2, cfg.Modbus.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "1", cfg.MQTT.BatteryID)
	assert.Equal(t, "seplos", cfg.MQTT.Prefix)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEPLOS_PORT", "/dev/ttyUSB3")
	t.Setenv("SEPLOS_SLAVE_ID", "2")
	t.Setenv("SEPLOS_INTERVAL", "10s")
	t.Setenv("MQTT_URL", "tcp://10.0.0.2:1883")

	cfg, err := Load(writeFile(t, "serial:\n  port: /dev/ttyUSB0\n"))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, uint8(2), cfg.Modbus.SlaveID)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.MQTT.URL)
}

func TestBadEnv(t *testing.T) {
	t.Setenv("SEPLOS_SLAVE_ID", "300")
	_, err := Load(writeFile(t, ""))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Serial.Driver = "usb" }},
		{name: "missing port", mutate: func(c *Config) { c.Serial.Port = "" }},
		{name: "odd baud rate", mutate: func(c *Config) { c.Serial.BaudRate = 12345 }},
		{name: "parity", mutate: func(c *Config) { c.Serial.Parity = "X" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Modbus.Timeout = 0 }},
		{name: "zero interval", mutate: func(c *Config) { c.Poll.Interval = 0 }},
		{name: "guard above 100 %", mutate: func(c *Config) { c.Write.MaxChange = 1.5 }},
		{name: "mqtt without url", mutate: func(c *Config) { c.MQTT.Enabled = true }},
		{name: "battery id with slash", mutate: func(c *Config) { c.MQTT.BatteryID = "a/b" }},
		{name: "audit without path", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Path = ""
		}},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, Validate(c), ErrInvalid)
		})
	}

	sim := Default()
	sim.Serial.Driver = DriverSim
	sim.Serial.Port = ""
	assert.NoError(t, Validate(sim))
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "seplos.yaml")
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyS1"
	require.NoError(t, Save(p, cfg))

	loaded, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
