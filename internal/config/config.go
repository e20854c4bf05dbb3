package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Observation data set backend
	Trajectory TrajectoryConfig `toml:"trajectory"` // Sub-ionospheric projection and gap repair
	Region     RegionConfig     `toml:"region"`     // Default region selection
	RateLimit  RateLimitConfig  `toml:"rate_limit"` // Per-client API rate limiting
	Metrics    MetricsConfig    `toml:"metrics"`    // Prometheus exposition
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	AdditionalPorts    []int    `toml:"additional_ports"`      // Extra ports served by the same router
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticDir          string   `toml:"static_dir"`            // Directory of the map client served at /; empty disables it
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data set backend configuration
type StorageConfig struct {
	Type       string         `toml:"type"`        // "sqlite" or "postgres"
	SQLitePath string         `toml:"sqlite_path"` // Path of the SQLite data set file
	Postgres   PostgresConfig `toml:"postgres"`    // Used when type is "postgres"
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	Username     string `toml:"username"`
	Password     string `toml:"password"` // Prefer SPITEC_DB_PASSWORD
	SSLMode      string `toml:"ssl_mode"` // disable, require, verify-ca, verify-full
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// TrajectoryConfig contains projection and gap repair settings
type TrajectoryConfig struct {
	ShellHeightKm       float64 `toml:"shell_height_km"`       // Default thin-shell height when a request does not set one
	MaxShellHeightKm    float64 `toml:"max_shell_height_km"`   // Upper bound accepted from requests
	GapThresholdMinutes float64 `toml:"gap_threshold_minutes"` // Sampling gaps longer than this are broken
	BreakOffsetSeconds  float64 `toml:"break_offset_seconds"`  // Offset of the outer break entries from the gap midpoint
	CacheSize           int     `toml:"cache_size"`            // Built trajectories kept in memory
}

// RegionConfig contains defaults for region selection
type RegionConfig struct {
	MinLat          float64 `toml:"min_lat"`
	MaxLat          float64 `toml:"max_lat"`
	MinLon          float64 `toml:"min_lon"`
	MaxLon          float64 `toml:"max_lon"`
	DefaultRadiusKm float64 `toml:"default_radius_km"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// GapThreshold returns the gap threshold as a duration
func (t TrajectoryConfig) GapThreshold() time.Duration {
	return time.Duration(t.GapThresholdMinutes * float64(time.Minute))
}

// BreakOffset returns the break offset as a duration
func (t TrajectoryConfig) BreakOffset() time.Duration {
	return time.Duration(t.BreakOffsetSeconds * float64(time.Second))
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvironmentOverrides()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnvironmentOverrides lets deployments keep secrets and paths out of the file
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("SPITEC_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if password := os.Getenv("SPITEC_DB_PASSWORD"); password != "" {
		c.Storage.Postgres.Password = password
	}
	if path := os.Getenv("SPITEC_DB_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
}

// applyDefaults fills unset values
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8050
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 30
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/spitec.db"
	}
	if c.Storage.Postgres.Port == 0 {
		c.Storage.Postgres.Port = 5432
	}
	if c.Storage.Postgres.SSLMode == "" {
		c.Storage.Postgres.SSLMode = "disable"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.Postgres.MaxIdleConns == 0 {
		c.Storage.Postgres.MaxIdleConns = 2
	}

	if c.Trajectory.ShellHeightKm == 0 {
		c.Trajectory.ShellHeightKm = 300
	}
	if c.Trajectory.MaxShellHeightKm == 0 {
		c.Trajectory.MaxShellHeightKm = 2000
	}
	if c.Trajectory.GapThresholdMinutes == 0 {
		c.Trajectory.GapThresholdMinutes = 10
	}
	if c.Trajectory.BreakOffsetSeconds == 0 {
		c.Trajectory.BreakOffsetSeconds = 30
	}
	if c.Trajectory.CacheSize == 0 {
		c.Trajectory.CacheSize = 512
	}

	// An all-zero box is the unset box
	if c.Region.MinLat == 0 && c.Region.MaxLat == 0 && c.Region.MinLon == 0 && c.Region.MaxLon == 0 {
		c.Region.MinLat, c.Region.MaxLat = -90, 90
		c.Region.MinLon, c.Region.MaxLon = -180, 180
	}
	if c.Region.DefaultRadiusKm == 0 {
		c.Region.DefaultRadiusKm = 500
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate fills defaults and validates the configuration
func (c *Config) Validate() error {
	c.applyDefaults()

	// Validate server config
	for _, port := range append([]int{c.Server.Port}, c.Server.AdditionalPorts...) {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid server port: %d", port)
		}
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required when storage type is sqlite")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.Database == "" {
			return fmt.Errorf("postgres host and database are required when storage type is postgres")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be 'sqlite' or 'postgres')", c.Storage.Type)
	}

	// Validate trajectory config
	t := c.Trajectory
	if t.ShellHeightKm <= 0 || t.ShellHeightKm > t.MaxShellHeightKm {
		return fmt.Errorf("shell_height_km must be within (0, %g]: got %g", t.MaxShellHeightKm, t.ShellHeightKm)
	}
	if t.GapThresholdMinutes <= 0 {
		return fmt.Errorf("gap_threshold_minutes must be positive: got %g", t.GapThresholdMinutes)
	}
	// Break entries must stay strictly inside the gap they mark
	if t.BreakOffsetSeconds <= 0 || 2*t.BreakOffset() >= t.GapThreshold() {
		return fmt.Errorf("break_offset_seconds must be positive and less than half the gap threshold: got %g", t.BreakOffsetSeconds)
	}
	if t.CacheSize < 0 {
		return fmt.Errorf("invalid cache_size: %d", t.CacheSize)
	}

	// Validate region config
	r := c.Region
	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLat >= r.MaxLat {
		return fmt.Errorf("invalid default latitude range: [%g, %g]", r.MinLat, r.MaxLat)
	}
	if r.MinLon < -180 || r.MaxLon > 180 || r.MinLon >= r.MaxLon {
		return fmt.Errorf("invalid default longitude range: [%g, %g]", r.MinLon, r.MaxLon)
	}
	if r.DefaultRadiusKm <= 0 {
		return fmt.Errorf("default_radius_km must be positive: got %g", r.DefaultRadiusKm)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	return nil
}
