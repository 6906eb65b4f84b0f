// Package hass holds the Home Assistant MQTT discovery payload types and
// the enumerations Home Assistant accepts for them.
package hass

const (
	// DefaultDiscoveryPrefix is the topic prefix Home Assistant watches for
	// discovery configs.
	DefaultDiscoveryPrefix = "homeassistant"
	// StatusTopic is published by Home Assistant itself ("online"/"offline")
	// under the discovery prefix.
	StatusTopic = "status"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Component is the Home Assistant platform name used in discovery topics.
type Component string

const (
	ComponentNumber       Component = "number"
	ComponentLight        Component = "light"
	ComponentBinarySensor Component = "binary_sensor"
	ComponentSensor       Component = "sensor"
	ComponentSelect       Component = "select"
	ComponentText         Component = "text"
	ComponentSwitch       Component = "switch"
)

// DeviceInfo is the device block shared by every entity of one device.
type DeviceInfo struct {
	Identifiers     []string `json:"identifiers"`
	Name            string   `json:"name"`
	Manufacturer    string   `json:"manufacturer"`
	Model           string   `json:"model"`
	SoftwareVersion string   `json:"sw_version,omitempty"`
	SuggestedArea   string   `json:"suggested_area,omitempty"`
}

type OriginInfo struct {
	Name            string `json:"name"`
	SoftwareVersion string `json:"sw_version,omitempty"`
	SupportUrl      string `json:"support_url,omitempty"`
}

// DiscoveryConfig is the retained payload published to
// <discovery_prefix>/<component>/<unique_id>/config.
type DiscoveryConfig struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	Device            DeviceInfo  `json:"device"`
	Origin            *OriginInfo `json:"origin,omitempty"`
	StateTopic        string      `json:"state_topic"`
	CommandTopic      string      `json:"command_topic,omitempty"`
	AvailabilityTopic string      `json:"availability_topic,omitempty"`
	EntityCategory    string      `json:"entity_category,omitempty"`
	Icon              string      `json:"icon,omitempty"`
	DeviceClass       string      `json:"device_class,omitempty"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	Schema            string      `json:"schema,omitempty"`

	// number; text reuses min/max as length bounds
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// select
	Options []string `json:"options,omitempty"`

	// text
	Pattern string `json:"pattern,omitempty"`

	// sensors
	StateClass         string `json:"state_class,omitempty"`
	ExpireAfter        int    `json:"expire_after,omitempty"`
	OffDelay           int    `json:"off_delay,omitempty"`
	SuggestedPrecision *int   `json:"suggested_display_precision,omitempty"`

	// switch / binary_sensor
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`

	// light
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Brightness          *bool    `json:"brightness,omitempty"`
	Effect              *bool    `json:"effect,omitempty"`
	EffectList          []string `json:"effect_list,omitempty"`
}
