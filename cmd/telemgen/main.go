package main

import (
	"encoding/json"
	"flag"
	"math"
	"math/rand"
	"net/http"
	"time"

	"vivarium/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	addr     = flag.String("addr", ":8090", "Listen address for the mock appliance")
	interval = flag.Duration("interval", 2*time.Second, "Interval between telemetry bursts")
	doorProb = flag.Float64("door", 0.05, "Probability of a door-open event per burst (0.0-1.0)")
)

// MockTelemetryGenerator produces realistic randomized telemetry the way a
// vivarium controller would report it.
type MockTelemetryGenerator struct {
	baseTemp     float64
	baseHumidity float64
	doorProb     float64
	doorOpen     bool
	startedAt    time.Time
	logger       *zap.Logger
}

func NewMockTelemetryGenerator(doorProb float64, logger *zap.Logger) *MockTelemetryGenerator {
	return &MockTelemetryGenerator{
		baseTemp:     27.0, // Base temperature ~27°C
		baseHumidity: 60.0, // Base humidity ~60%
		doorProb:     doorProb,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// Burst returns one round of envelopes: uptime, gauges, switches, usage,
// environment and the door indicator.
func (m *MockTelemetryGenerator) Burst() []models.Envelope {
	now := time.Now()
	hour := now.Hour()

	uptime := models.UptimeStatus{
		Uptime:    time.Since(m.startedAt).Seconds(),
		Timestamp: now.Unix(),
		Load:      [3]float64{round2(rand.Float64()), round2(rand.Float64()), round2(rand.Float64())},
		IsDay:     hour >= 8 && hour < 20,
	}

	readings := []models.SensorReading{
		{
			ID:       "sensor-temp-1",
			Type:     "temperature",
			Name:     "Warm side",
			Current:  round1(m.baseTemp + rand.Float64()*4.0 - 2.0),
			AlarmMin: 20,
			AlarmMax: 32,
			LimitMin: 0,
			LimitMax: 50,
		},
		{
			ID:       "sensor-hum-1",
			Type:     "humidity",
			Name:     "Enclosure humidity",
			Current:  round1(m.baseHumidity + rand.Float64()*10.0 - 5.0),
			AlarmMin: 40,
			AlarmMax: 80,
			LimitMin: 0,
			LimitMax: 100,
		},
	}

	switches := []models.SwitchStatus{
		{ID: "switch-heater", Name: "Heat mat", State: !uptime.IsDay, CurrentUsage: 35},
		{ID: "switch-light", Name: "UV light", State: uptime.IsDay, CurrentUsage: 24},
	}

	usage := models.UsageSnapshot{
		Power: models.MeterSnapshot{Current: round1(40 + rand.Float64()*20), Max: 120, Total: round1(rand.Float64() * 500)},
		Water: models.MeterSnapshot{Current: round1(rand.Float64() * 0.2), Max: 2, Total: round1(rand.Float64() * 40)},
	}

	environment := models.EnvironmentState{
		"heater":  {Mode: "sensor", State: onOff(!uptime.IsDay), Enabled: true},
		"sprayer": {Mode: "timer", State: onOff(rand.Float64() < 0.1), Enabled: true},
		"light":   {Mode: "timer", State: onOff(uptime.IsDay), Enabled: true},
	}

	// Door flaps rarely; once open it closes on the next burst.
	door := "closed"
	if m.doorOpen {
		m.doorOpen = false
	} else if rand.Float64() < m.doorProb {
		door = "open"
		m.doorOpen = true
	}

	return []models.Envelope{
		envelope(models.TypeUptime, uptime),
		envelope(models.TypeSensorGauge, readings),
		envelope(models.TypePowerSwitches, switches),
		envelope(models.TypeUsage, usage),
		envelope(models.TypeEnvironment, environment),
		envelope(models.TypeDoorIndicator, door),
	}
}

func envelope(msgType string, data interface{}) models.Envelope {
	payload, _ := json.Marshal(data)
	return models.Envelope{Type: msgType, Data: payload}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Mock appliance started",
		zap.String("addr", *addr),
		zap.Duration("interval", *interval),
		zap.Float64("door_probability", *doorProb))

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	http.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// The dashboard sends client_init first; log whether it resumes.
		var init models.Envelope
		if err := conn.ReadJSON(&init); err != nil {
			logger.Warn("Handshake read failed", zap.Error(err))
			return
		}
		var handshake models.ClientInit
		_ = json.Unmarshal(init.Data, &handshake)
		logger.Info("Dashboard connected",
			zap.String("remote", r.RemoteAddr),
			zap.Bool("reconnect", handshake.Reconnect))

		gen := NewMockTelemetryGenerator(*doorProb, logger)
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		sent := 0
		for range ticker.C {
			for _, env := range gen.Burst() {
				if err := conn.WriteJSON(env); err != nil {
					logger.Info("Dashboard disconnected",
						zap.String("remote", r.RemoteAddr),
						zap.Int("messages_sent", sent),
						zap.Error(err))
					return
				}
				sent++
			}
		}
	})

	// Minimal history endpoints so graphs have data to show.
	http.HandleFunc("/api/history/doors", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Unix()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][][]interface{}{
			"enclosure": {
				{float64(now - 7200), "open"},
				{float64(now - 7100), "closed"},
			},
		})
	})

	http.HandleFunc("/api/history/", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Unix()
		series := make([][]float64, 0, 24)
		for i := 23; i >= 0; i-- {
			series = append(series, []float64{
				float64(now - int64(i)*3600),
				round1(27.0 + rand.Float64()*4.0 - 2.0),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string][][]float64{{"values": series}})
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
