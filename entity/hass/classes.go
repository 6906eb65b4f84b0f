package hass

import "slices"

var numberDeviceClasses = []string{
	"apparent_power", "aqi", "atmospheric_pressure", "battery", "carbon_monoxide",
	"carbon_dioxide", "current", "data_rate", "data_size", "distance", "duration",
	"energy", "energy_storage", "frequency", "gas", "humidity", "illuminance",
	"irradiance", "moisture", "monetary", "nitrogen_dioxide", "nitrogen_monoxide",
	"nitrous_oxide", "ozone", "ph", "pm1", "pm10", "pm25", "power_factor", "power",
	"precipitation", "precipitation_intensity", "pressure", "reactive_power",
	"signal_strength", "sound_pressure", "speed", "sulphur_dioxide", "temperature",
	"volatile_organic_compounds", "volatile_organic_compounds_parts", "voltage",
	"volume", "volume_storage", "water", "weight", "wind_speed",
}

// sensor accepts everything a number does plus "timestamp".
var sensorDeviceClasses = append(slices.Clone(numberDeviceClasses), "timestamp")

var binarySensorDeviceClasses = []string{
	"battery", "battery_charging", "carbon_monoxide", "cold", "connectivity", "door",
	"garage_door", "gas", "heat", "light", "lock", "moisture", "motion", "moving",
	"occupancy", "opening", "plug", "power", "presence", "problem", "running", "safety",
	"smoke", "sound", "tamper", "update", "vibration", "window",
}

var switchDeviceClasses = []string{"outlet", "switch"}

var stateClasses = []string{"measurement", "total", "total_increasing"}

// Number display modes.
const (
	NumberModeAuto   = "auto"
	NumberModeBox    = "box"
	NumberModeSlider = "slider"
)

// Text display modes.
const (
	TextModeText     = "text"
	TextModePassword = "password"
)

// Light color modes, see https://www.home-assistant.io/integrations/light.mqtt/#supported_color_modes
const (
	ColorModeOnOff      = "onoff"
	ColorModeBrightness = "brightness"
	ColorModeColorTemp  = "color_temp"
	ColorModeHS         = "hs"
	ColorModeXY         = "xy"
	ColorModeRGB        = "rgb"
	ColorModeRGBW       = "rgbw"
	ColorModeRGBWW      = "rgbww"
	ColorModeWhite      = "white"
)

var colorModes = []string{
	ColorModeOnOff, ColorModeBrightness, ColorModeColorTemp, ColorModeHS, ColorModeXY,
	ColorModeRGB, ColorModeRGBW, ColorModeRGBWW, ColorModeWhite,
}

// ValidDeviceClass reports whether deviceClass is accepted by Home Assistant
// for the component. An empty class is always valid.
func ValidDeviceClass(component Component, deviceClass string) bool {
	if deviceClass == "" {
		return true
	}
	switch component {
	case ComponentNumber:
		return slices.Contains(numberDeviceClasses, deviceClass)
	case ComponentSensor:
		return slices.Contains(sensorDeviceClasses, deviceClass)
	case ComponentBinarySensor:
		return slices.Contains(binarySensorDeviceClasses, deviceClass)
	case ComponentSwitch:
		return slices.Contains(switchDeviceClasses, deviceClass)
	default:
		return false
	}
}

func ValidStateClass(stateClass string) bool {
	return stateClass == "" || slices.Contains(stateClasses, stateClass)
}

func ValidNumberMode(mode string) bool {
	return mode == NumberModeAuto || mode == NumberModeBox || mode == NumberModeSlider
}

func ValidTextMode(mode string) bool {
	return mode == TextModeText || mode == TextModePassword
}

func ValidColorMode(mode string) bool {
	return slices.Contains(colorModes, mode)
}
