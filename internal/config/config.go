package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all tool settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	LogDir          string
	HTTPAddr        string // empty disables the health/metrics server
	ShutdownTimeout time.Duration

	// Product notifications; disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string

	Workers          int
	SamplesPerDay    int
	RunoffVariable   string
	FlowVariable     string
	HourlyFilePrefix string

	// Read cache bounds per opened netCDF file.
	CacheBlocks int
	CacheValues int

	// SourceStartYears maps a dataset tag (era5, erai) to the first year of its record.
	SourceStartYears map[string]int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	workers, err := positiveInt("WORKERS", "1")
	if err != nil {
		return nil, err
	}
	samples, err := positiveInt("SAMPLES_PER_DAY", "24")
	if err != nil {
		return nil, err
	}
	cacheBlocks, err := positiveInt("CACHE_MAX_BLOCKS", "8")
	if err != nil {
		return nil, err
	}
	cacheValues, err := positiveInt("CACHE_MAX_VALUES", "67108864")
	if err != nil {
		return nil, err
	}
	startYears, err := ParseStartYears(sharedcfg.EnvOrDefault("SOURCE_START_YEARS", "era5:1979,erai:1980"))
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_START_YEARS: %w", err)
	}

	var brokers []string
	if raw := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); strings.TrimSpace(raw) != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		LogDir:           sharedcfg.EnvOrDefault("LOG_DIR", ""),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		ShutdownTimeout:  shutdownTimeout,
		KafkaBrokers:     brokers,
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hydro-products"),
		Workers:          workers,
		SamplesPerDay:    samples,
		RunoffVariable:   sharedcfg.EnvOrDefault("RUNOFF_VARIABLE", "RO"),
		FlowVariable:     sharedcfg.EnvOrDefault("FLOW_VARIABLE", "Qout"),
		HourlyFilePrefix: sharedcfg.EnvOrDefault("HOURLY_FILE_PREFIX", "era5_Ro1_"),
		CacheBlocks:      cacheBlocks,
		CacheValues:      cacheValues,
		SourceStartYears: startYears,
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.RunoffVariable == "" {
		return nil, errors.New("RUNOFF_VARIABLE is required")
	}
	if cfg.FlowVariable == "" {
		return nil, errors.New("FLOW_VARIABLE is required")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether committed products are announced on Kafka.
func (c *Config) NotificationsEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ParseStartYears parses a "tag:year,tag:year" table.
func ParseStartYears(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tag, year, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected tag:year", pair)
		}
		y, err := strconv.Atoi(strings.TrimSpace(year))
		if err != nil || y <= 0 {
			return nil, fmt.Errorf("entry %q: invalid year", pair)
		}
		out[strings.ToLower(strings.TrimSpace(tag))] = y
	}
	return out, nil
}

// FormatStartYears renders a start-year table in the form ParseStartYears accepts.
func FormatStartYears(m map[string]int) string {
	tags := make([]string, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = fmt.Sprintf("%s:%d", tag, m[tag])
	}
	return strings.Join(parts, ",")
}

func positiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
