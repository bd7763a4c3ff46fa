package services

import (
	"encoding/json"

	"vivarium/models"

	"go.uber.org/zap"
)

// TelemetryHandlers receives the decoded payload of each recognized envelope
// type. Implementations render gauges, graphs and indicators; the router only
// decodes and dispatches. Handlers run on the dispatcher goroutine and must
// not block on further socket I/O.
type TelemetryHandlers interface {
	HandleUptime(status models.UptimeStatus)
	HandleUsage(usage models.UsageSnapshot)
	HandleEnvironment(state models.EnvironmentState)
	HandleSensors(readings []models.SensorReading)
	HandleSwitches(switches []models.SwitchStatus)
	HandleDoor(state models.DoorState)
	HandleWeather(weather models.WeatherBundle)
}

// RouterService demultiplexes inbound envelopes to the domain handlers.
type RouterService struct {
	handlers TelemetryHandlers
	logger   *zap.Logger
}

func NewRouterService(handlers TelemetryHandlers, logger *zap.Logger) *RouterService {
	return &RouterService{
		handlers: handlers,
		logger:   logger,
	}
}

// Route dispatches one envelope by its type tag. Unknown types are ignored so
// newer appliance firmware can add message types without breaking older
// dashboards. Malformed payloads are logged and dropped; they never stop the
// message loop.
func (r *RouterService) Route(env *models.Envelope) {
	switch env.Type {
	case models.TypeUptime:
		var status models.UptimeStatus
		if r.decode(env, &status) {
			r.handlers.HandleUptime(status)
		}

	case models.TypeUsage:
		var usage models.UsageSnapshot
		if r.decode(env, &usage) {
			r.handlers.HandleUsage(usage)
		}

	case models.TypeEnvironment:
		var state models.EnvironmentState
		if r.decode(env, &state) {
			r.handlers.HandleEnvironment(state)
		}

	case models.TypeSensorGauge:
		var readings []models.SensorReading
		if r.decode(env, &readings) {
			r.handlers.HandleSensors(readings)
		}

	case models.TypePowerSwitches:
		var switches []models.SwitchStatus
		if r.decode(env, &switches) {
			r.handlers.HandleSwitches(switches)
		}

	case models.TypeDoorIndicator:
		var raw string
		if r.decode(env, &raw) {
			r.handlers.HandleDoor(models.DoorStateFrom(raw))
		}

	case models.TypeWeather:
		var weather models.WeatherBundle
		if r.decode(env, &weather) {
			r.handlers.HandleWeather(weather)
		}

	default:
		r.logger.Debug("Ignoring unknown envelope type", zap.String("type", env.Type))
	}
}

func (r *RouterService) decode(env *models.Envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		r.logger.Warn("Malformed envelope payload",
			zap.String("type", env.Type),
			zap.Error(err))
		return false
	}
	return true
}
