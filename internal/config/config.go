package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	PollInterval time.Duration

	// Source toggles and endpoints. URLs are overridable so tests and
	// air-gapped deployments can point adapters elsewhere.
	NOAAEnabled bool
	NOAAURL     string

	USGSEnabled      bool
	USGSURL          string
	USGSMinMagnitude float64

	FIRMSEnabled       bool
	FIRMSURL           string
	FIRMSMinConfidence float64

	RSSEnabled bool
	RSSFeeds   []string

	FetchTimeout time.Duration

	// Ranking and correlation.
	RelevanceThreshold float64
	CorrelationWindow  time.Duration
	EventTTL           time.Duration
	DedupeCapacity     int

	// Kafka signal source and event sink (feature-flagged).
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	BatchSize        int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	correlationWindow, err := parseDuration("CORRELATION_WINDOW", "2h")
	if err != nil {
		return nil, err
	}
	eventTTL, err := parseDuration("EVENT_TTL", "24h")
	if err != nil {
		return nil, err
	}

	relevanceThreshold, err := parseFloat("RELEVANCE_THRESHOLD", 0.3)
	if err != nil {
		return nil, err
	}
	usgsMinMagnitude, err := parseFloat("USGS_MIN_MAGNITUDE", 2.5)
	if err != nil {
		return nil, err
	}
	firmsMinConfidence, err := parseFloat("FIRMS_MIN_CONFIDENCE", 50)
	if err != nil {
		return nil, err
	}

	dedupeCapacity, err := parseInt("DEDUPE_CAPACITY", 100000)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseInt("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PollInterval: pollInterval,
		FetchTimeout: fetchTimeout,

		NOAAEnabled: envBool("NOAA_ENABLED", true),
		NOAAURL:     envOrDefault("NOAA_URL", "https://api.weather.gov/alerts/active"),

		USGSEnabled:      envBool("USGS_ENABLED", true),
		USGSURL:          envOrDefault("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.geojson"),
		USGSMinMagnitude: usgsMinMagnitude,

		FIRMSEnabled:       envBool("FIRMS_ENABLED", true),
		FIRMSURL:           envOrDefault("FIRMS_URL", "https://firms.modaps.eosdis.nasa.gov/data/active_fire/modis-c6.1/csv/MODIS_C6_1_USA_contiguous_and_Hawaii_24h.csv"),
		FIRMSMinConfidence: firmsMinConfidence,

		RSSEnabled: envBool("RSS_ENABLED", false),
		RSSFeeds:   parseList(os.Getenv("RSS_FEEDS")),

		RelevanceThreshold: relevanceThreshold,
		CorrelationWindow:  correlationWindow,
		EventTTL:           eventTTL,
		DedupeCapacity:     dedupeCapacity,

		KafkaEnabled:     envBool("KAFKA_ENABLED", false),
		KafkaBrokers:     parseList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: envOrDefault("KAFKA_SOURCE_TOPIC", "raw-disaster-signals"),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "disaster-events"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "disaster-intel"),
		BatchSize:        batchSize,
	}

	if cfg.RSSEnabled && len(cfg.RSSFeeds) == 0 {
		return nil, errors.New("RSS_ENABLED is true but RSS_FEEDS is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 1 {
		return nil, errors.New("RELEVANCE_THRESHOLD must be between 0 and 1")
	}
	if !cfg.NOAAEnabled && !cfg.USGSEnabled && !cfg.FIRMSEnabled && !cfg.RSSEnabled && !cfg.KafkaEnabled {
		return nil, errors.New("no signal sources enabled")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return fallback
	}
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

// parseList splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
