package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores settings shared by the API, the worker and the maintenance commands.
type Config struct {
	Port      int
	Env       string
	Log       Log
	DB        DB
	Redis     Redis
	Kafka     Kafka
	MQTT      MQTT
	Auth      Auth
	RateLimit RateLimit
	CORS      CORS
	Feed      Feed
	Pricing   Pricing
	Pprof     Pprof
	Worker    Worker
}

// Log selects the logging backend.
type Log struct {
	Backend string // slog | zap
	Level   string
}

// DB holds Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN returns a postgres connection URL.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Redis holds the current-position store settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Kafka holds delivery change stream settings. Empty Brokers disables Kafka.
type Kafka struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Enabled reports whether a broker list is configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// MQTT holds device location ingestion settings. Empty Broker disables ingestion.
type MQTT struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	LocationTopic string
	QoS           byte
}

// Auth holds bearer token verification settings.
type Auth struct {
	Secret string
	Issuer string
}

// RateLimit holds per-caller request limits.
type RateLimit struct {
	Enabled bool
	Rate    float64
	Burst   int
	TTL     time.Duration
}

// CORS holds allowed browser origins.
type CORS struct {
	AllowedOrigins []string
}

// Feed holds live location and radius feed settings.
type Feed struct {
	DefaultRadiusKm  float64
	HistoryInterval  time.Duration
	HistoryRetention time.Duration
	PruneSchedule    string
}

// Pricing holds tariff overrides.
type Pricing struct {
	TariffFile string
	TimeZone   string
}

// Pprof holds the debug listener settings. Disabled by default.
type Pprof struct {
	Enabled bool
	Addr    string
	User    string
	Pass    string
}

// Worker holds settings only the background worker reads.
type Worker struct {
	// MetricsAddr serves /metrics for the worker; empty disables it.
	MetricsAddr string
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:      DefaultPort(),
		Env:       "development",
		Log:       DefaultLog(),
		DB:        DefaultDB(),
		Redis:     DefaultRedis(),
		Kafka:     DefaultKafka(),
		MQTT:      DefaultMQTT(),
		Auth:      DefaultAuth(),
		RateLimit: DefaultRateLimit(),
		CORS:      CORS{AllowedOrigins: []string{"*"}},
		Feed:      DefaultFeed(),
		Pricing:   Pricing{TimeZone: DefaultTimeZone()},
		Pprof:     DefaultPprof(),
		Worker:    DefaultWorker(),
	}

	if err := fromEnv(cfg); err != nil {
		return nil, err
	}

	fs := pflag.CommandLine
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	fs.StringVar(&cfg.Pricing.TariffFile, "tariff", cfg.Pricing.TariffFile, "path to a tariff override file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv(cfg *Config) error {
	var err error

	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return err
	}
	cfg.Env = envString("APP_ENV", cfg.Env)
	cfg.Log.Backend = envString("LOG_BACKEND", cfg.Log.Backend)
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)

	cfg.DB.Host = envString("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envString("POSTGRES_PORT", cfg.DB.Port)
	if _, err := strconv.Atoi(cfg.DB.Port); err != nil {
		return fmt.Errorf("invalid POSTGRES_PORT %q: %w", cfg.DB.Port, err)
	}
	cfg.DB.User = envString("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Pass = envString("POSTGRES_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = envString("POSTGRES_DB", cfg.DB.Name)

	cfg.Redis.Addr = envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envString("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = envInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}

	cfg.Kafka.Brokers = envList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = envString("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = envString("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.MQTT.Broker = envString("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = envString("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = envString("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envString("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.LocationTopic = envString("MQTT_LOCATION_TOPIC", cfg.MQTT.LocationTopic)
	qos, err := envInt("MQTT_QOS", int(cfg.MQTT.QoS))
	if err != nil {
		return err
	}
	cfg.MQTT.QoS = byte(qos)

	cfg.Auth.Secret = envString("AUTH_JWT_SECRET", cfg.Auth.Secret)
	cfg.Auth.Issuer = envString("AUTH_JWT_ISSUER", cfg.Auth.Issuer)

	if cfg.RateLimit.Enabled, err = envBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled); err != nil {
		return err
	}
	if cfg.RateLimit.Rate, err = envFloat("RATE_LIMIT_RPS", cfg.RateLimit.Rate); err != nil {
		return err
	}
	if cfg.RateLimit.Burst, err = envInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst); err != nil {
		return err
	}
	if cfg.RateLimit.TTL, err = envDuration("RATE_LIMIT_TTL", cfg.RateLimit.TTL); err != nil {
		return err
	}

	cfg.CORS.AllowedOrigins = envList("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	if cfg.Feed.DefaultRadiusKm, err = envFloat("FEED_DEFAULT_RADIUS_KM", cfg.Feed.DefaultRadiusKm); err != nil {
		return err
	}
	if cfg.Feed.HistoryInterval, err = envDuration("LOCATION_HISTORY_INTERVAL", cfg.Feed.HistoryInterval); err != nil {
		return err
	}
	if cfg.Feed.HistoryRetention, err = envDuration("LOCATION_HISTORY_RETENTION", cfg.Feed.HistoryRetention); err != nil {
		return err
	}
	cfg.Feed.PruneSchedule = envString("LOCATION_HISTORY_PRUNE_SCHEDULE", cfg.Feed.PruneSchedule)

	cfg.Pricing.TariffFile = envString("PRICING_TARIFF_FILE", cfg.Pricing.TariffFile)
	cfg.Pricing.TimeZone = envString("PRICING_TIMEZONE", cfg.Pricing.TimeZone)

	if cfg.Pprof.Enabled, err = envBool("PPROF_ENABLED", cfg.Pprof.Enabled); err != nil {
		return err
	}
	cfg.Pprof.Addr = envString("PPROF_ADDR", cfg.Pprof.Addr)
	cfg.Pprof.User = envString("PPROF_USER", cfg.Pprof.User)
	cfg.Pprof.Pass = envString("PPROF_PASS", cfg.Pprof.Pass)

	cfg.Worker.MetricsAddr = envString("WORKER_METRICS_ADDR", cfg.Worker.MetricsAddr)
	return nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must not be empty")
	}
	if c.Feed.DefaultRadiusKm <= 0 {
		return fmt.Errorf("invalid FEED_DEFAULT_RADIUS_KM: %v", c.Feed.DefaultRadiusKm)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS: %d", c.MQTT.QoS)
	}
	if _, err := time.LoadLocation(c.Pricing.TimeZone); err != nil {
		return fmt.Errorf("invalid PRICING_TIMEZONE %q: %w", c.Pricing.TimeZone, err)
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
