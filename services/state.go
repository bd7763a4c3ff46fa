package services

import (
	"context"
	"sync"
	"time"

	"vivarium/models"

	"go.uber.org/zap"
)

// DashboardState holds the latest decoded telemetry per domain: the gauge
// registry, switch states, climate status, door indicator and weather. It is
// the TelemetryHandlers implementation behind the router; rendering layers
// read snapshots through the getters instead of touching shared globals.
type DashboardState struct {
	logger   *zap.Logger
	cache    *SeriesCacheService
	notifier *TelegramService // nil when Telegram is not configured

	mu           sync.RWMutex
	uptime       models.UptimeStatus
	usage        models.UsageSnapshot
	environment  models.EnvironmentState
	sensors      map[string]models.SensorReading
	switches     map[string]models.SwitchStatus
	door         models.DoorState
	doorKnown    bool
	weather      models.WeatherBundle
	online       bool
	offlineSince time.Time
}

func NewDashboardState(cache *SeriesCacheService, notifier *TelegramService, logger *zap.Logger) *DashboardState {
	return &DashboardState{
		logger:   logger,
		cache:    cache,
		notifier: notifier,
		sensors:  make(map[string]models.SensorReading),
		switches: make(map[string]models.SwitchStatus),
	}
}

func (d *DashboardState) HandleUptime(status models.UptimeStatus) {
	d.mu.Lock()
	d.uptime = status
	d.mu.Unlock()
}

func (d *DashboardState) HandleUsage(usage models.UsageSnapshot) {
	d.mu.Lock()
	d.usage = usage
	d.mu.Unlock()
}

func (d *DashboardState) HandleEnvironment(state models.EnvironmentState) {
	d.mu.Lock()
	d.environment = state
	d.mu.Unlock()
}

func (d *DashboardState) HandleSensors(readings []models.SensorReading) {
	d.mu.Lock()
	for _, reading := range readings {
		if reading.ID == "" {
			// Anonymous aggregate readings are not registered as gauges.
			continue
		}
		d.sensors[reading.ID] = reading
	}
	d.mu.Unlock()

	for _, reading := range readings {
		if reading.ID == "" || reading.AlarmMin == reading.AlarmMax {
			continue
		}
		if reading.Current < reading.AlarmMin || reading.Current > reading.AlarmMax {
			d.logger.Warn("Sensor reading outside alarm range",
				zap.String("sensor_id", reading.ID),
				zap.String("type", reading.Type),
				zap.Float64("current", reading.Current),
				zap.Float64("alarm_min", reading.AlarmMin),
				zap.Float64("alarm_max", reading.AlarmMax))
		}
	}
}

func (d *DashboardState) HandleSwitches(switches []models.SwitchStatus) {
	d.mu.Lock()
	for _, sw := range switches {
		d.switches[sw.ID] = sw
	}
	d.mu.Unlock()
}

func (d *DashboardState) HandleDoor(state models.DoorState) {
	d.mu.Lock()
	changed := !d.doorKnown || d.door != state
	d.door = state
	d.doorKnown = true
	d.mu.Unlock()

	if !changed {
		return
	}

	d.logger.Info("Door state changed", zap.String("state", string(state)))

	if d.notifier != nil && state == models.DoorOpen {
		if err := d.notifier.SendDoorAlert("enclosure", state, time.Now()); err != nil {
			d.logger.Error("Failed to send door alert", zap.Error(err))
		}
	}
}

func (d *DashboardState) HandleWeather(weather models.WeatherBundle) {
	d.mu.Lock()
	d.weather = weather
	d.mu.Unlock()
}

// HandleConnectivity receives the watchdog's online/offline transitions,
// tracks downtime and pushes notifications.
func (d *DashboardState) HandleConnectivity(online bool) {
	d.mu.Lock()
	d.online = online
	var downSince time.Time
	if online {
		downSince = d.offlineSince
		d.offlineSince = time.Time{}
	} else {
		d.offlineSince = time.Now()
	}
	d.mu.Unlock()

	if online {
		d.logger.Info("Dashboard online")
		if d.notifier != nil && !downSince.IsZero() {
			if err := d.notifier.SendRecoveryAlert(time.Since(downSince)); err != nil {
				d.logger.Error("Failed to send recovery alert", zap.Error(err))
			}
		}
		return
	}

	d.logger.Warn("Dashboard offline")
	if d.notifier != nil {
		if err := d.notifier.SendOfflineAlert(time.Now()); err != nil {
			d.logger.Error("Failed to send offline alert", zap.Error(err))
		}
	}
}

// SeedDoorHistory reports doors whose most recent historical sample is still
// open, covering activity that happened while no dashboard was watching.
// Called once at startup with the door-history endpoint's data.
func (d *DashboardState) SeedDoorHistory(doors map[string][]models.DoorSample) {
	for door, samples := range doors {
		if len(samples) == 0 {
			continue
		}
		last := samples[len(samples)-1]
		if last.State != models.DoorOpen {
			continue
		}

		at := time.Unix(last.Timestamp, 0)
		d.logger.Warn("Door was left open",
			zap.String("door", door),
			zap.Time("since", at))

		if d.notifier != nil {
			if err := d.notifier.SendDoorAlert(door, last.State, at); err != nil {
				d.logger.Error("Failed to send door alert", zap.Error(err))
			}
		}
	}
}

// Series returns the historical series for one registered gauge, served from
// the cache. The displayed graph keeps advancing through the cache's
// background refresh.
func (d *DashboardState) Series(ctx context.Context, subjectID string, period models.Period, forceRefresh bool) []models.SeriesPoint {
	return d.cache.GetSeries(ctx, subjectID, period, forceRefresh)
}

// Snapshot getters for rendering layers.

func (d *DashboardState) Uptime() models.UptimeStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.uptime
}

func (d *DashboardState) Usage() models.UsageSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.usage
}

func (d *DashboardState) Environment() models.EnvironmentState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.environment
}

func (d *DashboardState) Sensor(id string) (models.SensorReading, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reading, ok := d.sensors[id]
	return reading, ok
}

func (d *DashboardState) Sensors() []models.SensorReading {
	d.mu.RLock()
	defer d.mu.RUnlock()
	readings := make([]models.SensorReading, 0, len(d.sensors))
	for _, reading := range d.sensors {
		readings = append(readings, reading)
	}
	return readings
}

func (d *DashboardState) Switch(id string) (models.SwitchStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sw, ok := d.switches[id]
	return sw, ok
}

func (d *DashboardState) Door() (models.DoorState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.door, d.doorKnown
}

func (d *DashboardState) Weather() models.WeatherBundle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.weather
}

func (d *DashboardState) Online() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.online
}
