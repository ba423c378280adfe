// Package config loads and validates the reconnode YAML configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600

	defaultPostgresPort = 5432
	defaultAPIPort      = 8080
)

// Config represents the complete node configuration.
type Config struct {
	Scan      ScanConfig      `yaml:"scan" json:"scan"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Resolver  ResolverConfig  `yaml:"resolver" json:"resolver"`
	Services  ServicesConfig  `yaml:"services" json:"services"`
	Publish   PublishConfig   `yaml:"publish" json:"publish"`
	History   HistoryConfig   `yaml:"history" json:"history"`
	API       APIConfig       `yaml:"api" json:"api"`
	Daemon    DaemonConfig    `yaml:"daemon" json:"daemon"`
	Logging   logging.Config  `yaml:"logging" json:"logging"`
}

// ScanConfig is the snapshot the orchestrator copies when a scan starts.
// Hosts are addressed as NetworkPrefix + host id, e.g. "192.168.0." + "17".
type ScanConfig struct {
	NetworkPrefix     string        `yaml:"network_prefix" json:"network_prefix" validate:"required,netprefix"`
	StartIP           uint8         `yaml:"start_ip" json:"start_ip" validate:"min=1"`
	EndIP             uint8         `yaml:"end_ip" json:"end_ip" validate:"min=1,gtefield=StartIP"`
	StartPort         uint16        `yaml:"start_port" json:"start_port" validate:"min=1"`
	EndPort           uint16        `yaml:"end_port" json:"end_port" validate:"min=1,gtefield=StartPort"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	Interval          time.Duration `yaml:"interval" json:"interval" validate:"gte=0"`
	WorkerThreads     int           `yaml:"worker_threads" json:"worker_threads" validate:"min=1,max=256"`
	QueueSize         int           `yaml:"queue_size" json:"queue_size" validate:"min=1"`
	EnablePublish     bool          `yaml:"enable_publish" json:"enable_publish"`
	EnableBannerGrab  bool          `yaml:"enable_banner_grab" json:"enable_banner_grab"`
	SkipHostCheck     bool          `yaml:"skip_host_check" json:"skip_host_check"`
	DrainTimeout      time.Duration `yaml:"drain_timeout" json:"drain_timeout" validate:"gt=0"`
	PausePollInterval time.Duration `yaml:"pause_poll_interval" json:"pause_poll_interval" validate:"gt=0"`
}

// HostAddr returns the dotted address of a host id.
func (s ScanConfig) HostAddr(hostID uint8) string {
	return HostAddr(s.NetworkPrefix, hostID)
}

// Network returns the /24 the prefix belongs to, in CIDR notation.
func (s ScanConfig) Network() string {
	return NetworkOf(s.NetworkPrefix)
}

// HostAddr joins a network prefix such as "192.168.0." and a host id.
func HostAddr(prefix string, hostID uint8) string {
	return fmt.Sprintf("%s%d", prefix, hostID)
}

// NetworkOf returns the /24 of prefix in CIDR notation.
func NetworkOf(prefix string) string {
	return prefix + "0/24"
}

// PortCount returns the number of ports in the configured range.
func (s ScanConfig) PortCount() int {
	return int(s.EndPort) - int(s.StartPort) + 1
}

// HostCount returns the number of hosts in the configured range.
func (s ScanConfig) HostCount() int {
	return int(s.EndIP) - int(s.StartIP) + 1
}

// DiscoveryConfig controls the ping sweep that seeds host ordering.
type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// LivenessTimeout bounds each fallback TCP connect.
	LivenessTimeout time.Duration `yaml:"liveness_timeout" json:"liveness_timeout" validate:"gt=0"`
}

// ResolverConfig selects hostname resolution methods, tried in order.
type ResolverConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	DNSServer     string        `yaml:"dns_server" json:"dns_server" validate:"omitempty,hostname_port"`
	EnableMDNS    bool          `yaml:"enable_mdns" json:"enable_mdns"`
	EnableNetBIOS bool          `yaml:"enable_netbios" json:"enable_netbios"`
	SNMPCommunity string        `yaml:"snmp_community" json:"snmp_community"`
}

// ServicesConfig controls mDNS service browsing and the SMB null session check.
type ServicesConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MDNSAddr is where browse queries are sent, normally the mDNS group.
	MDNSAddr      string        `yaml:"mdns_addr" json:"mdns_addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	BrowseTimeout time.Duration `yaml:"browse_timeout" json:"browse_timeout" validate:"gt=0"`
	SMBTimeout    time.Duration `yaml:"smb_timeout" json:"smb_timeout" validate:"gt=0"`
}

// PublishConfig selects the event publisher.
type PublishConfig struct {
	Backend     string `yaml:"backend" json:"backend" validate:"oneof=none redis"`
	RedisAddr   string `yaml:"redis_addr" json:"redis_addr" validate:"required_if=Backend redis"`
	Password    string `yaml:"password" json:"-"`
	DB          int    `yaml:"db" json:"db" validate:"gte=0"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix" validate:"required"`
}

// HistoryConfig holds the optional Postgres scan history settings.
type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host" validate:"required_if=Enabled true"`
	Port            int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Database        string        `yaml:"database" json:"database" validate:"required_if=Enabled true"`
	Username        string        `yaml:"username" json:"username" validate:"required_if=Enabled true"`
	Password        string        `yaml:"password" json:"-"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// APIConfig holds HTTP surface settings.
type APIConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr" validate:"required_if=Enabled true"`
	Port           int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`

	// APIKeys enables X-API-Key authentication when non-empty.
	APIKeys []string `yaml:"api_keys" json:"-"`

	// RateLimitRequests per RateLimitWindow per client; zero disables limiting.
	RateLimitRequests int           `yaml:"rate_limit_requests" json:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window" json:"rate_limit_window" validate:"gte=0"`
}

// DaemonConfig controls the long-running node process.
type DaemonConfig struct {
	PIDFile             string        `yaml:"pid_file" json:"pid_file"`
	ScanOnStart         bool          `yaml:"scan_on_start" json:"scan_on_start"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" validate:"gt=0"`
}

// Address returns host:port for the listener.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.ListenAddr, fmt.Sprintf("%d", a.Port))
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			NetworkPrefix:     "192.168.0.",
			StartIP:           1,
			EndIP:             254,
			StartPort:         1,
			EndPort:           1024,
			Timeout:           100 * time.Millisecond,
			Interval:          5 * time.Minute,
			WorkerThreads:     12,
			QueueSize:         200,
			EnablePublish:     false,
			EnableBannerGrab:  true,
			SkipHostCheck:     true,
			DrainTimeout:      5 * time.Minute,
			PausePollInterval: 100 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			Timeout:         30 * time.Second,
			LivenessTimeout: 30 * time.Millisecond,
		},
		Resolver: ResolverConfig{
			Timeout:       200 * time.Millisecond,
			EnableMDNS:    true,
			EnableNetBIOS: true,
		},
		Services: ServicesConfig{
			Enabled:       true,
			MDNSAddr:      "224.0.0.251:5353",
			BrowseTimeout: 3 * time.Second,
			SMBTimeout:    2 * time.Second,
		},
		Publish: PublishConfig{
			Backend:     "none",
			RedisAddr:   "localhost:6379",
			TopicPrefix: "portscan",
		},
		History: HistoryConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            defaultPostgresPort,
			SSLMode:         "disable",
			MaxOpenConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		API: APIConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1",
			Port:           defaultAPIPort,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,

			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Daemon: DaemonConfig{
			ScanOnStart:         true,
			ShutdownTimeout:     30 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return errors.WrapConfigError(errors.CodeDirectoryCreate, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return errors.WrapConfigError(errors.CodeFilePermission, "failed to write config file", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("netprefix", func(fl validator.FieldLevel) bool {
		return ValidNetworkPrefix(fl.Field().String())
	})
	return v
}

// ValidNetworkPrefix reports whether prefix is the first three octets of an
// IPv4 address followed by a dot.
func ValidNetworkPrefix(prefix string) bool {
	if !strings.HasSuffix(prefix, ".") || strings.Count(prefix, ".") != 3 {
		return false
	}
	ip := net.ParseIP(prefix + "1")
	return ip != nil && ip.To4() != nil
}

// Validate checks struct tags and reports the first failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("failed %q validation", fe.Tag()), fe.Namespace(), fe.Value())
	}
	return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
}
