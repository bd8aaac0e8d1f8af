// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/store"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

type Config struct {
	Port          string
	Timeout       time.Duration
	RefreshPeriod time.Duration

	Store store.Config
	MQTT  rabbitmq.RabbitMQConfig

	TelemetryTopic    string // subscription filter for hardware readings
	EventTopicTmpl    string // "record changed" topic template, {bin} placeholder
	EventSubscription string // filter matching EventTopicTmpl

	Log logging.Config
}

// Load reads .env (if present) and the environment. clientID is the default
// MQTT client id of the calling service.
func Load(clientID string) Config {
	_ = godotenv.Load()

	eventTmpl := getenv("BIN_EVENT_TOPIC_TEMPLATE", "event/binChanged/{bin}")
	return Config{
		Port:          getenv("PORT", "8080"),
		Timeout:       time.Duration(getenvInt("TIMEOUT_MS", 3000)) * time.Millisecond,
		RefreshPeriod: time.Duration(getenvInt("REFRESH_SECONDS", 60)) * time.Second,

		Store: store.Config{
			Backend: getenv("STORE_BACKEND", store.BackendMemory),
			Path:    getenv("STORE_PATH", "dustbins"),
			Firebase: store.FirebaseConfig{
				DatabaseURL:     os.Getenv("FIREBASE_DATABASE_URL"),
				CredentialsFile: getenv("FIREBASE_CREDENTIALS", "serviceKey.json"),
			},
			Influx: store.InfluxConfig{
				URL:      getenv("INFLUX_URL", "http://localhost:8086"),
				Token:    os.Getenv("INFLUX_TOKEN"),
				Org:      getenv("INFLUX_ORG", "binova"),
				Bucket:   getenv("INFLUX_BUCKET", "dustbins"),
				Lookback: time.Duration(getenvInt("INFLUX_LOOKBACK_HOURS", 24*30)) * time.Hour,
			},
			Breaker: store.BreakerSettings{
				Name:     "store",
				Fails:    getenvInt("CB_FAILS", 3),
				OpenFor:  time.Duration(getenvInt("CB_OPEN_MS", 10000)) * time.Millisecond,
				Interval: time.Duration(getenvInt("CB_INTERVAL_MS", 60000)) * time.Millisecond,
			},
		},

		MQTT: rabbitmq.RabbitMQConfig{
			Host:     os.Getenv("MQTT_HOST"),
			Port:     getenvInt("MQTT_PORT", 1883),
			User:     getenv("MQTT_USER", "guest"),
			Password: getenv("MQTT_PASSWORD", "guest"),
			ClientID: getenv("MQTT_CLIENT_ID", clientID),
		},

		TelemetryTopic:    getenv("TELEMETRY_SUB_TOPIC", "bin/data/#"),
		EventTopicTmpl:    eventTmpl,
		EventSubscription: getenv("BIN_EVENT_SUB_TOPIC", strings.ReplaceAll(eventTmpl, "{bin}", "+")),

		Log: logging.Config{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}
}

// Warnings lists settings that work but are unlikely to be intended in a
// deployment. The memory backend is private to each process, so the
// dashboard never sees what ingest writes.
func (c Config) Warnings() []string {
	var out []string
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case "", store.BackendMemory:
		out = append(out, "STORE_BACKEND=memory: bins live in this process only and are lost on restart; set STORE_BACKEND=firebase or influx to share them between services")
	}
	return out
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}
