// Package ha builds Home Assistant MQTT discovery payloads and topics for one battery.
package ha

import (
	"encoding/json"
	"fmt"
)

const (
	Manufacturer = "Seplos"
	Model        = "Seplos BMSv3 MQTT"
	Origin       = "seplos-go"

	Online  = "online"
	Offline = "offline"
)

type Device struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type OriginInfo struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw,omitempty"`
}

type SensorConfig struct {
	Name              string                 `json:"name"`
	UniqueID          string                 `json:"uniq_id"`
	StateTopic        string                 `json:"stat_t"`
	AvailabilityTopic string                 `json:"avty_t,omitempty"`
	DeviceClass       string                 `json:"dev_cla,omitempty"`
	UnitOfMeas        string                 `json:"unit_of_meas,omitempty"`
	StateClass        string                 `json:"stat_cla,omitempty"`
	Precision         int                    `json:"suggested_display_precision,omitempty"`
	Device            *Device                `json:"dev,omitempty"`
	Origin            *OriginInfo            `json:"origin,omitempty"`
	Extra             map[string]interface{} `json:"-"`
}

func (c *SensorConfig) Marshal() ([]byte, error) {
	type alias SensorConfig
	a := alias(*c)
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	if c.Extra != nil {
		var base map[string]interface{}
		if err := json.Unmarshal(b, &base); err != nil {
			return nil, err
		}
		for k, v := range c.Extra {
			base[k] = v
		}
		return json.Marshal(base)
	}
	return b, nil
}

// Sensor is the part of a reading discovery needs.
type Sensor struct {
	Key         string
	Title       string
	Unit        string
	DeviceClass string
	Precision   int
}

// Battery names the topics of one pack.
type Battery struct {
	ID              string
	Prefix          string
	DiscoveryPrefix string
	Version         string
}

func (b Battery) node() string { return "battery_" + b.ID }

func (b Battery) StateTopic(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.Prefix, b.node(), key)
}

func (b Battery) AvailabilityTopic() string {
	return fmt.Sprintf("%s/%s/state", b.Prefix, b.node())
}

func (b Battery) ConfigTopic(key string) string {
	return TopicSensorConfig(b.DiscoveryPrefix, key, "seplos_bms_"+b.ID)
}

func (b Battery) Device() *Device {
	return &Device{
		Identifiers:  []string{"seplos_battery_" + b.ID},
		Manufacturer: Manufacturer,
		Model:        Model,
		Name:         "Seplos BMS " + b.ID,
		SWVersion:    b.Version,
	}
}

func (b Battery) SensorConfig(s Sensor) *SensorConfig {
	return &SensorConfig{
		Name:              s.Title,
		UniqueID:          fmt.Sprintf("seplos_battery_%s_%s", b.ID, s.Key),
		StateTopic:        b.StateTopic(s.Key),
		AvailabilityTopic: b.AvailabilityTopic(),
		DeviceClass:       s.DeviceClass,
		UnitOfMeas:        s.Unit,
		StateClass:        "measurement",
		Precision:         s.Precision,
		Device:            b.Device(),
		Origin:            &OriginInfo{Name: Origin, SWVersion: b.Version},
	}
}

func TopicSensorConfig(discoveryPrefix, cap, unique string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", discoveryPrefix, unique, cap)
}
