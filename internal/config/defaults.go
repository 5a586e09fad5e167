package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "dispatch",
}

var defaultRedis = Redis{
	Addr: "127.0.0.1:6379",
}

var defaultKafka = Kafka{
	Topic:   "delivery-events",
	GroupID: "dispatch-api",
}

var defaultMQTT = MQTT{
	ClientID:      "dispatch-worker",
	LocationTopic: "couriers/+/location",
	QoS:           1,
}

var defaultAuth = Auth{
	Secret: "dev-secret-change-me",
}

var defaultRateLimit = RateLimit{
	Enabled: true,
	Rate:    20,
	Burst:   40,
	TTL:     10 * time.Minute,
}

var defaultFeed = Feed{
	DefaultRadiusKm:  5,
	HistoryInterval:  time.Minute,
	HistoryRetention: 7 * 24 * time.Hour,
	PruneSchedule:    "0 0 * * * *",
}

var defaultLog = Log{
	Backend: "slog",
	Level:   "info",
}

const defaultTimeZone = "Asia/Jerusalem"

var defaultPprof = Pprof{
	Addr: "127.0.0.1:6060",
}

var defaultWorker = Worker{
	MetricsAddr: ":9091",
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultRedis returns the default Redis settings.
func DefaultRedis() Redis {
	return defaultRedis
}

// DefaultKafka returns the default Kafka settings; brokers are empty so Kafka stays off.
func DefaultKafka() Kafka {
	return defaultKafka
}

// DefaultMQTT returns the default MQTT settings.
func DefaultMQTT() MQTT {
	return defaultMQTT
}

// DefaultAuth returns the default token verification settings.
func DefaultAuth() Auth {
	return defaultAuth
}

// DefaultRateLimit returns the default rate limit settings.
func DefaultRateLimit() RateLimit {
	return defaultRateLimit
}

// DefaultFeed returns the default live feed settings.
func DefaultFeed() Feed {
	return defaultFeed
}

// DefaultLog returns the default logging settings.
func DefaultLog() Log {
	return defaultLog
}

// DefaultTimeZone returns the zone used for tariff surcharges.
func DefaultTimeZone() string {
	return defaultTimeZone
}

// DefaultPprof returns the default debug listener settings.
func DefaultPprof() Pprof {
	return defaultPprof
}

// DefaultWorker returns the default worker settings.
func DefaultWorker() Worker {
	return defaultWorker
}
