package broker

import "github.com/beerpi/beerpi/internal/buildinfo"

// DeviceInfo holds the Home Assistant device registry fields shared
// across all discovery config payloads. Every entity published by this
// instance references the same device block so HA groups them under a
// single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// NewDeviceInfo creates a DeviceInfo from the persistent instance ID
// and the human-readable device name. The instance ID is the primary
// HA device identifier and stays stable across renames.
func NewDeviceInfo(instanceID, deviceName string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{instanceID},
		Name:         deviceName,
		Manufacturer: "BeerPi Project",
		Model:        "BeerPi Temperature Monitor",
		SWVersion:    buildinfo.Version,
	}
}

// Registration is one retained discovery message: the HA component
// type, the discovery object ID, and the JSON payload. Registrations
// are defined at startup, never mutated, and republished idempotently
// on every (re-)connect.
type Registration struct {
	Component string // "sensor", "binary_sensor", "number", "switch"
	ObjectID  string
	Payload   any
}

// SensorConfig is the discovery payload for an HA MQTT sensor. Field
// names match what the external consumer expects; do not rename them.
type SensorConfig struct {
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	DeviceClass       string      `json:"device_class,omitempty"`
	UniqueID          string      `json:"unique_id"`
	ValueTemplate     string      `json:"value_template,omitempty"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	Device            *DeviceInfo `json:"device,omitempty"`
}

// BinarySensorConfig is the discovery payload for an HA binary sensor.
type BinarySensorConfig struct {
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic"`
	PayloadOn         string      `json:"payload_on"`
	PayloadOff        string      `json:"payload_off"`
	DeviceClass       string      `json:"device_class,omitempty"`
	UniqueID          string      `json:"unique_id"`
	ValueTemplate     string      `json:"value_template,omitempty"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	Device            *DeviceInfo `json:"device,omitempty"`
}

// NumberConfig is the discovery payload for an HA number entity
// (temperature setpoints).
type NumberConfig struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	StateTopic        string      `json:"state_topic"`
	CommandTopic      string      `json:"command_topic"`
	Min               float64     `json:"min"`
	Max               float64     `json:"max"`
	Step              float64     `json:"step"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	Device            *DeviceInfo `json:"device,omitempty"`
}

// SwitchConfig is the discovery payload for an HA switch entity
// (manual control toggle).
type SwitchConfig struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	StateTopic        string      `json:"state_topic"`
	CommandTopic      string      `json:"command_topic"`
	PayloadOn         string      `json:"payload_on"`
	PayloadOff        string      `json:"payload_off"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	Device            *DeviceInfo `json:"device,omitempty"`
}
