package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	URL          string
	Username     string
	Password     string
	ClientID     string
	Topic        string // inbound telemetry
	CommandTopic string
	PublishTopic string // simulator only
}

// InfluxConfig holds the time-series store settings.
type InfluxConfig struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	Measurement   string
	AppTag        string
	FlushInterval time.Duration
	CreateBucket  bool
}

// RedisConfig enables the latest-record cache when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	LatestTTL time.Duration
}

// Auth0Config enables command API authentication when Issuer and Audience
// are set.
type Auth0Config struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

// Config holds the application's configuration.
type Config struct {
	MQTT            MQTTConfig
	Influx          InfluxConfig
	Redis           RedisConfig
	Auth0           Auth0Config
	MLServiceURL    string
	MLTimeout       time.Duration
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// loadEnvFile loads envFile into the process environment. A missing file is
// not an error.
func loadEnvFile(envFile string) {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file found, relying on system environment variables", envFile)
	}
}

// LoadConfig loads the server configuration from envFile and the
// environment.
func LoadConfig(envFile string) (Config, error) {
	loadEnvFile(envFile)

	var errs []error
	cfg := Config{
		MQTT: loadMQTT(&errs),
		Influx: InfluxConfig{
			URL:           required("INFLUX_URL", &errs),
			Token:         required("INFLUX_TOKEN", &errs),
			Org:           required("INFLUX_ORG", &errs),
			Bucket:        required("INFLUX_BUCKET", &errs),
			Measurement:   getEnv("INFLUX_MEASUREMENT", "sensor_data"),
			AppTag:        getEnv("INFLUX_APP_TAG", "iot-mqtt-influx-backend"),
			FlushInterval: duration("INFLUX_FLUSH_INTERVAL", 5*time.Second, &errs),
			CreateBucket:  boolean("INFLUX_CREATE_BUCKET", false, &errs),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        integer("REDIS_DB", 0, &errs),
			LatestTTL: duration("LATEST_TTL", 24*time.Hour, &errs),
		},
		Auth0: Auth0Config{
			Issuer:   os.Getenv("AUTH0_ISSUER"),
			Audience: os.Getenv("AUTH0_AUDIENCE"),
			JWKSURL:  os.Getenv("AUTH0_JWKS_URL"),
		},
		MLServiceURL:    strings.TrimRight(getEnv("ML_SERVICE_URL", "http://localhost:5000"), "/"),
		MLTimeout:       duration("ML_TIMEOUT", 30*time.Second, &errs),
		Port:            getEnv("HTTP_PORT", "4000"),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
	}
	cfg.MQTT.Topic = required("MQTT_TOPIC", &errs)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("configuration is incomplete: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// LoadPublisherConfig loads the broker settings used by the telemetry
// simulator.
func LoadPublisherConfig(envFile string) (MQTTConfig, error) {
	loadEnvFile(envFile)

	var errs []error
	cfg := loadMQTT(&errs)
	cfg.PublishTopic = required("MQTT_PUBLISH_TOPIC", &errs)
	if len(errs) > 0 {
		return MQTTConfig{}, fmt.Errorf("configuration is incomplete: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func loadMQTT(errs *[]error) MQTTConfig {
	return MQTTConfig{
		URL:          required("MQTT_URL", errs),
		Username:     os.Getenv("MQTT_USERNAME"),
		Password:     os.Getenv("MQTT_PASSWORD"),
		ClientID:     getEnv("MQTT_CLIENT_ID", "smartwater-"+uuid.NewString()),
		CommandTopic: getEnv("MQTT_COMMAND_TOPIC", "iot/alatku/command"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func required(key string, errs *[]error) string {
	v := os.Getenv(key)
	if v == "" {
		*errs = append(*errs, fmt.Errorf("%s is not set", key))
	}
	return v
}

func duration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func integer(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func boolean(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
