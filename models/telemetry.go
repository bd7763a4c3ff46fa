package models

import (
	"encoding/json"
)

// Envelope is the wire unit exchanged with the appliance over the live
// socket: a type tag plus an opaque payload decoded by the domain handler.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Recognized envelope types emitted by the appliance, plus the single
// client-originated handshake type.
const (
	TypeClientInit    = "client_init"
	TypeUptime        = "uptime"
	TypeUsage         = "power_usage_water_flow"
	TypeEnvironment   = "environment"
	TypeSensorGauge   = "sensor_gauge"
	TypePowerSwitches = "power_switches"
	TypeDoorIndicator = "door_indicator"
	TypeWeather       = "update_weather"
)

// ClientInit is the handshake payload sent after every successful connect.
// Reconnect tells the appliance whether this session resumes an earlier one,
// which affects server-side replay decisions.
type ClientInit struct {
	Reconnect bool `json:"reconnect"`
}

// SessionState tracks the lifecycle of the single appliance session.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionOpen
	SessionClosing
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// UptimeStatus is the system heartbeat payload: clock, load and day/night.
type UptimeStatus struct {
	Uptime    float64    `json:"uptime"`
	Timestamp int64      `json:"timestamp"`
	Load      [3]float64 `json:"load"`
	IsDay     bool       `json:"day"`
}

// MeterSnapshot is one side of the power/water usage message.
type MeterSnapshot struct {
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
	Total   float64 `json:"total"`
}

// UsageSnapshot carries the nested power and water metering readouts.
type UsageSnapshot struct {
	Power MeterSnapshot `json:"power"`
	Water MeterSnapshot `json:"water"`
}

// EnvironmentPart is the status of one climate subsystem (heater, sprayer,
// light, cooler), keyed by subsystem name in the environment message.
type EnvironmentPart struct {
	Mode    string `json:"mode"`
	State   string `json:"state"`
	Alarm   bool   `json:"alarm"`
	On      int64  `json:"on"`
	Off     int64  `json:"off"`
	Enabled bool   `json:"enabled"`
}

// EnvironmentState maps subsystem name to its current status.
type EnvironmentState map[string]EnvironmentPart

// SensorReading is one gauge update. ID may be empty when the appliance sends
// an anonymous aggregate reading (e.g. average temperature).
type SensorReading struct {
	ID       string  `json:"id,omitempty"`
	Type     string  `json:"type,omitempty"`
	Name     string  `json:"name,omitempty"`
	Current  float64 `json:"current"`
	AlarmMin float64 `json:"alarm_min"`
	AlarmMax float64 `json:"alarm_max"`
	LimitMin float64 `json:"limit_min"`
	LimitMax float64 `json:"limit_max"`
}

// SwitchStatus is the state of one power switch.
type SwitchStatus struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	State        bool    `json:"state"`
	CurrentUsage float64 `json:"current_power_wattage,omitempty"`
}

// DoorState is the decoded door indicator.
type DoorState string

const (
	DoorOpen   DoorState = "open"
	DoorClosed DoorState = "closed"
)

// DoorStateFrom maps the raw wire value onto a DoorState. The appliance sends
// the literal "open"; every other value means closed.
func DoorStateFrom(raw string) DoorState {
	if raw == string(DoorOpen) {
		return DoorOpen
	}
	return DoorClosed
}

// WeatherObservation is a single current or hourly weather sample.
type WeatherObservation struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Icon        string  `json:"icon,omitempty"`
}

// WeatherDay is one day of forecast with its extremes.
type WeatherDay struct {
	Timestamp int64   `json:"timestamp"`
	TempMin   float64 `json:"temperature_min"`
	TempMax   float64 `json:"temperature_max"`
	Icon      string  `json:"icon,omitempty"`
}

// WeatherBundle is the full weather update: current conditions plus the
// multi-day and hourly forecasts.
type WeatherBundle struct {
	City     string               `json:"city,omitempty"`
	Current  WeatherObservation   `json:"current"`
	Forecast []WeatherDay         `json:"forecast"`
	Hourly   []WeatherObservation `json:"hourly"`
}
