package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable holding an explicit config file path
const EnvConfigPath = "SKYROUTE_CONFIG_PATH"

// Config holds all configuration for the daemon
type Config struct {
	HTTPAddr     string
	DBPath       string
	RegistryCSV  []string
	PollInterval time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	Log          LogConfig
	Route        RouteConfig
	Detection    DetectionConfig
	Simulation   SimulationConfig
	Zones        []ZoneConfig
	Fleet        []AircraftConfig
	Telemetry    TelemetryConfig
	Influx       InfluxConfig
	Cache        CacheConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string
	Format     string
	File       string // optional rotating log file, stdout only when empty
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// RouteConfig holds route optimizer settings
type RouteConfig struct {
	PinDestination          bool
	MaxPasses               int
	CriticalDistanceKm      float64
	CriticalConstraintCount int
}

// DetectionConfig holds conflict detection thresholds
type DetectionConfig struct {
	ProximityKm          float64
	CriticalProximityKm  float64
	ZoneCriticalRatio    float64
	MaxPositionJitterDeg float64
	MaxAltitudeJitterFt  float64
}

// SimulationConfig seeds the motion simulation; zero picks a time based seed
type SimulationConfig struct {
	Seed int64
}

// ZoneConfig is one restricted zone entry
type ZoneConfig struct {
	Name     string  `mapstructure:"name"`
	Lat      float64 `mapstructure:"lat"`
	Lon      float64 `mapstructure:"lon"`
	RadiusKm float64 `mapstructure:"radius_km"`
}

// AircraftConfig is one aircraft of the initial simulated fleet
type AircraftConfig struct {
	ID         string  `mapstructure:"id"`
	Callsign   string  `mapstructure:"callsign"`
	Lat        float64 `mapstructure:"lat"`
	Lon        float64 `mapstructure:"lon"`
	AltitudeFt float64 `mapstructure:"altitude_ft"`
	Category   string  `mapstructure:"category"`
}

// TelemetryConfig selects and configures the live aircraft source
type TelemetryConfig struct {
	Source  string // opensky, sbs or none
	Timeout time.Duration
	OpenSky OpenSkyConfig
	SBS     SBSConfig
}

type OpenSkyConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	BBox         BBoxConfig
}

type BBoxConfig struct {
	MinLat float64 `mapstructure:"min_lat"`
	MinLon float64 `mapstructure:"min_lon"`
	MaxLat float64 `mapstructure:"max_lat"`
	MaxLon float64 `mapstructure:"max_lon"`
}

type SBSConfig struct {
	Addr       string
	StaleAfter time.Duration
}

// InfluxConfig holds the optional metrics sink settings
type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

type CacheConfig struct {
	RouteSize int
}

// Telemetry source names
const (
	SourceOpenSky = "opensky"
	SourceSBS     = "sbs"
	SourceNone    = "none"
)

// Load loads configuration from the config file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/skyroute")
	v.AddConfigPath(".")

	if configPath := os.Getenv(EnvConfigPath); configPath != "" {
		v.SetConfigFile(configPath)
	}

	// A missing config file is fine, defaults and env vars still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SKYROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db_path", "skyroute.db")
	v.SetDefault("registry_csv", []string{})
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("batch_size", 100)
	v.SetDefault("batch_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("route.pin_destination", false)
	v.SetDefault("route.max_passes", 100)
	v.SetDefault("route.critical_distance_km", 500.0)
	v.SetDefault("route.critical_constraint_count", 3)

	v.SetDefault("detection.proximity_km", 5.0)
	v.SetDefault("detection.critical_proximity_km", 2.0)
	v.SetDefault("detection.zone_critical_ratio", 0.5)
	v.SetDefault("detection.max_position_jitter_deg", 0.01)
	v.SetDefault("detection.max_altitude_jitter_ft", 100.0)

	v.SetDefault("simulation.seed", 0)

	v.SetDefault("telemetry.source", SourceNone)
	v.SetDefault("telemetry.timeout", "10s")
	v.SetDefault("telemetry.opensky.base_url", "https://opensky-network.org/api")
	v.SetDefault("telemetry.opensky.token_url", "")
	v.SetDefault("telemetry.opensky.client_id", "")
	v.SetDefault("telemetry.opensky.client_secret", "")
	v.SetDefault("telemetry.sbs.addr", "localhost:30003")
	v.SetDefault("telemetry.sbs.stale_after", "60s")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "skyroute")
	v.SetDefault("influx.bucket", "skyroute")

	v.SetDefault("cache.route_size", 256)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:     v.GetString("http.addr"),
		DBPath:       v.GetString("db_path"),
		RegistryCSV:  v.GetStringSlice("registry_csv"),
		PollInterval: v.GetDuration("poll_interval"),
		BatchSize:    v.GetInt("batch_size"),
		BatchTimeout: v.GetDuration("batch_timeout"),
		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("log.level")),
			Format:     strings.ToLower(v.GetString("log.format")),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Route: RouteConfig{
			PinDestination:          v.GetBool("route.pin_destination"),
			MaxPasses:               v.GetInt("route.max_passes"),
			CriticalDistanceKm:      v.GetFloat64("route.critical_distance_km"),
			CriticalConstraintCount: v.GetInt("route.critical_constraint_count"),
		},
		Detection: DetectionConfig{
			ProximityKm:          v.GetFloat64("detection.proximity_km"),
			CriticalProximityKm:  v.GetFloat64("detection.critical_proximity_km"),
			ZoneCriticalRatio:    v.GetFloat64("detection.zone_critical_ratio"),
			MaxPositionJitterDeg: v.GetFloat64("detection.max_position_jitter_deg"),
			MaxAltitudeJitterFt:  v.GetFloat64("detection.max_altitude_jitter_ft"),
		},
		Simulation: SimulationConfig{
			Seed: v.GetInt64("simulation.seed"),
		},
		Telemetry: TelemetryConfig{
			Source:  strings.ToLower(v.GetString("telemetry.source")),
			Timeout: v.GetDuration("telemetry.timeout"),
			OpenSky: OpenSkyConfig{
				BaseURL:      v.GetString("telemetry.opensky.base_url"),
				TokenURL:     v.GetString("telemetry.opensky.token_url"),
				ClientID:     v.GetString("telemetry.opensky.client_id"),
				ClientSecret: v.GetString("telemetry.opensky.client_secret"),
			},
			SBS: SBSConfig{
				Addr:       v.GetString("telemetry.sbs.addr"),
				StaleAfter: v.GetDuration("telemetry.sbs.stale_after"),
			},
		},
		Influx: InfluxConfig{
			Enabled: v.GetBool("influx.enabled"),
			URL:     v.GetString("influx.url"),
			Token:   v.GetString("influx.token"),
			Org:     v.GetString("influx.org"),
			Bucket:  v.GetString("influx.bucket"),
		},
		Cache: CacheConfig{
			RouteSize: v.GetInt("cache.route_size"),
		},
	}

	if err := v.UnmarshalKey("zones", &cfg.Zones); err != nil {
		return nil, fmt.Errorf("error decoding zones: %w", err)
	}
	if err := v.UnmarshalKey("fleet", &cfg.Fleet); err != nil {
		return nil, fmt.Errorf("error decoding fleet: %w", err)
	}
	if err := v.UnmarshalKey("telemetry.opensky.bbox", &cfg.Telemetry.OpenSky.BBox); err != nil {
		return nil, fmt.Errorf("error decoding opensky bbox: %w", err)
	}

	return cfg, nil
}

// validate validates the configuration values
func validate(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return errors.New("http.addr is required")
	}
	if cfg.DBPath == "" {
		return errors.New("db_path is required")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll_interval must be greater than 0")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("batch_size must be greater than 0")
	}
	if cfg.BatchTimeout <= 0 {
		return errors.New("batch_timeout must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[cfg.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	if cfg.Route.MaxPasses < 0 {
		return errors.New("route.max_passes must not be negative")
	}
	if cfg.Route.CriticalDistanceKm <= 0 {
		return errors.New("route.critical_distance_km must be greater than 0")
	}

	d := cfg.Detection
	if d.ProximityKm <= 0 || d.CriticalProximityKm <= 0 {
		return errors.New("detection proximity thresholds must be greater than 0")
	}
	if d.CriticalProximityKm > d.ProximityKm {
		return errors.New("detection.critical_proximity_km must not exceed detection.proximity_km")
	}
	if d.ZoneCriticalRatio <= 0 || d.ZoneCriticalRatio > 1 {
		return errors.New("detection.zone_critical_ratio must be in (0, 1]")
	}
	if d.MaxPositionJitterDeg < 0 || d.MaxAltitudeJitterFt < 0 {
		return errors.New("simulation jitter must not be negative")
	}

	names := make(map[string]bool, len(cfg.Zones))
	for i, z := range cfg.Zones {
		if z.Name == "" {
			return fmt.Errorf("zones[%d]: name is required", i)
		}
		if names[z.Name] {
			return fmt.Errorf("zones[%d]: duplicate name %q", i, z.Name)
		}
		names[z.Name] = true
		if z.Lat < -90 || z.Lat > 90 || z.Lon < -180 || z.Lon > 180 {
			return fmt.Errorf("zones[%d]: center out of range", i)
		}
		if z.RadiusKm <= 0 {
			return fmt.Errorf("zones[%d]: radius_km must be greater than 0", i)
		}
	}

	ids := make(map[string]bool, len(cfg.Fleet))
	for i, a := range cfg.Fleet {
		if a.ID == "" {
			return fmt.Errorf("fleet[%d]: id is required", i)
		}
		if ids[a.ID] {
			return fmt.Errorf("fleet[%d]: duplicate id %q", i, a.ID)
		}
		ids[a.ID] = true
		if a.Lat < -90 || a.Lat > 90 || a.Lon < -180 || a.Lon > 180 {
			return fmt.Errorf("fleet[%d]: position out of range", i)
		}
		switch strings.ToLower(a.Category) {
		case "", "passenger", "cargo", "unknown":
		default:
			return fmt.Errorf("fleet[%d]: invalid category %q", i, a.Category)
		}
	}

	switch cfg.Telemetry.Source {
	case SourceNone:
	case SourceOpenSky:
		if cfg.Telemetry.OpenSky.ClientSecret != "" && cfg.Telemetry.OpenSky.ClientID == "" {
			return errors.New("telemetry.opensky.client_id is required with a client secret")
		}
	case SourceSBS:
		if cfg.Telemetry.SBS.Addr == "" {
			return errors.New("telemetry.sbs.addr is required")
		}
	default:
		return fmt.Errorf("invalid telemetry source: %s (must be opensky, sbs, or none)", cfg.Telemetry.Source)
	}
	if cfg.Telemetry.Timeout <= 0 {
		return errors.New("telemetry.timeout must be greater than 0")
	}

	if cfg.Influx.Enabled {
		if cfg.Influx.URL == "" || cfg.Influx.Org == "" || cfg.Influx.Bucket == "" {
			return errors.New("influx.url, influx.org and influx.bucket are required when influx is enabled")
		}
	}

	return nil
}
