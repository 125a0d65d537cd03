// Package config loads, validates and saves the lanscope configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configDirPerm  = 0755
	configFilePerm = 0644
)

// Config represents the complete lanscope configuration.
type Config struct {
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Resolver ResolverConfig `yaml:"resolver" json:"resolver"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Default ports to scan, comma separated or a profile name
	DefaultPorts string `yaml:"default_ports" json:"default_ports"`

	// Per-host timeout budget
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Hosts probed concurrently per batch
	ConcurrencyLimit int `yaml:"concurrency_limit" json:"concurrency_limit"`

	// Pause between batches
	BatchPause time.Duration `yaml:"batch_pause" json:"batch_pause"`

	// Probe provider: auto, icmp, tcp or nmap
	Provider string `yaml:"provider" json:"provider"`

	// Ports dialed by the TCP liveness provider
	LivenessPorts []int `yaml:"liveness_ports" json:"liveness_ports"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Custom port profiles, name to port list
	Profiles map[string]string `yaml:"profiles" json:"profiles"`
}

// RateLimitConfig holds probe rate limiting settings
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Probes per second across all providers
	PerSecond int `yaml:"per_second" json:"per_second"`

	BurstSize int `yaml:"burst_size" json:"burst_size"`
}

// CacheConfig holds result and identity cache settings
type CacheConfig struct {
	RangeTTL         time.Duration `yaml:"range_ttl" json:"range_ttl"`
	IdentityTTL      time.Duration `yaml:"identity_ttl" json:"identity_ttl"`
	RangeCapacity    int           `yaml:"range_capacity" json:"range_capacity"`
	IdentityCapacity int           `yaml:"identity_capacity" json:"identity_capacity"`
}

// ResolverConfig holds device identity resolution settings
type ResolverConfig struct {
	DNS      DNSConfig      `yaml:"dns" json:"dns"`
	MDNS     MDNSConfig     `yaml:"mdns" json:"mdns"`
	SNMP     SNMPConfig     `yaml:"snmp" json:"snmp"`
	Neighbor NeighborConfig `yaml:"neighbor" json:"neighbor"`
	OUI      OUIConfig      `yaml:"oui" json:"oui"`

	// Per-host resolution budget
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Concurrent resolutions in a batch
	BatchConcurrency int `yaml:"batch_concurrency" json:"batch_concurrency"`
}

// DNSConfig configures the reverse lookup channel
type DNSConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Servers override resolv.conf, host:port form
	Servers []string `yaml:"servers" json:"servers"`
}

// MDNSConfig configures the multicast name-service channel
type MDNSConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// How long a browse runs before the index is considered complete
	BrowseWindow time.Duration `yaml:"browse_window" json:"browse_window"`

	// How long a finished browse stays valid
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`

	Services []string `yaml:"services" json:"services"`
}

// SNMPConfig configures the SNMP name-service channel
type SNMPConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Community string        `yaml:"community" json:"community"`
	Port      uint16        `yaml:"port" json:"port"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// NeighborConfig configures the neighbor table channel
type NeighborConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path of the kernel ARP table
	ProcPath string `yaml:"proc_path" json:"proc_path"`
}

// OUIConfig configures vendor lookup
type OUIConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// External fallback URL, the MAC is appended. Empty disables the fallback.
	ExternalURL string `yaml:"external_url" json:"external_url"`

	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// MonitorConfig holds scheduled rescan settings
type MonitorConfig struct {
	// Standard five-field cron expression
	Schedule string `yaml:"schedule" json:"schedule"`
}

// MetricsConfig holds the read-only HTTP surface settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			DefaultPorts:     "default",
			Timeout:          2 * time.Second,
			ConcurrencyLimit: 10,
			BatchPause:       50 * time.Millisecond,
			Provider:         "auto",
			LivenessPorts:    []int{80, 443, 22, 445, 139},
			RateLimit: RateLimitConfig{
				Enabled:   false,
				PerSecond: 200,
				BurstSize: 50,
			},
		},
		Cache: CacheConfig{
			RangeTTL:         5 * time.Minute,
			IdentityTTL:      10 * time.Minute,
			RangeCapacity:    64,
			IdentityCapacity: 4096,
		},
		Resolver: ResolverConfig{
			DNS: DNSConfig{Enabled: true},
			MDNS: MDNSConfig{
				Enabled:         true,
				BrowseWindow:    2 * time.Second,
				RefreshInterval: 2 * time.Minute,
				Services: []string{
					"_workstation._tcp",
					"_device-info._tcp",
					"_http._tcp",
					"_ipp._tcp",
					"_printer._tcp",
					"_airplay._tcp",
					"_googlecast._tcp",
					"_smb._tcp",
				},
			},
			SNMP: SNMPConfig{
				Enabled:   false,
				Community: "public",
				Port:      161,
				Timeout:   time.Second,
			},
			Neighbor: NeighborConfig{
				Enabled:  true,
				ProcPath: "/proc/net/arp",
			},
			OUI: OUIConfig{
				Enabled:     true,
				ExternalURL: "",
				CacheSize:   1024,
			},
			Timeout:          3 * time.Second,
			BatchConcurrency: 10,
		},
		Monitor: MonitorConfig{
			Schedule: "*/5 * * * *",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, one decoder covers both extensions.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scanning.Timeout <= 0 {
		return fmt.Errorf("scanning timeout must be positive")
	}
	if c.Scanning.ConcurrencyLimit <= 0 || c.Scanning.ConcurrencyLimit > 100 {
		return fmt.Errorf("scanning concurrency limit must be between 1 and 100")
	}
	if c.Scanning.BatchPause < 0 {
		return fmt.Errorf("batch pause cannot be negative")
	}

	validProviders := map[string]bool{
		"auto": true,
		"icmp": true,
		"tcp":  true,
		"nmap": true,
	}
	if !validProviders[c.Scanning.Provider] {
		return fmt.Errorf("invalid probe provider: %s", c.Scanning.Provider)
	}

	if c.Scanning.RateLimit.Enabled && c.Scanning.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive when enabled")
	}

	if c.Cache.RangeTTL <= 0 || c.Cache.IdentityTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.RangeCapacity <= 0 || c.Cache.IdentityCapacity <= 0 {
		return fmt.Errorf("cache capacities must be positive")
	}

	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive")
	}
	if c.Resolver.BatchConcurrency <= 0 {
		return fmt.Errorf("resolver batch concurrency must be positive")
	}
	if c.Resolver.SNMP.Enabled && c.Resolver.SNMP.Community == "" {
		return fmt.Errorf("SNMP community is required when SNMP is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// IsMetricsEnabled returns true if the HTTP surface should be served
func (c *Config) IsMetricsEnabled() bool {
	return c.Metrics.Enabled
}
