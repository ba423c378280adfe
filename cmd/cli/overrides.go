package cli

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/logging"
)

// override copies one viper key into the config when it is set by a flag,
// the environment or the config file.
type override struct {
	key   string
	apply func(cfg *config.Config, v *viper.Viper, key string)
}

var overrides = []override{
	{"scan.network_prefix", func(c *config.Config, v *viper.Viper, k string) { c.Scan.NetworkPrefix = v.GetString(k) }},
	{"scan.start_ip", func(c *config.Config, v *viper.Viper, k string) { c.Scan.StartIP = uint8(v.GetUint(k)) }},
	{"scan.end_ip", func(c *config.Config, v *viper.Viper, k string) { c.Scan.EndIP = uint8(v.GetUint(k)) }},
	{"scan.start_port", func(c *config.Config, v *viper.Viper, k string) { c.Scan.StartPort = v.GetUint16(k) }},
	{"scan.end_port", func(c *config.Config, v *viper.Viper, k string) { c.Scan.EndPort = v.GetUint16(k) }},
	{"scan.timeout", func(c *config.Config, v *viper.Viper, k string) { c.Scan.Timeout = v.GetDuration(k) }},
	{"scan.interval", func(c *config.Config, v *viper.Viper, k string) { c.Scan.Interval = v.GetDuration(k) }},
	{"scan.worker_threads", func(c *config.Config, v *viper.Viper, k string) { c.Scan.WorkerThreads = v.GetInt(k) }},
	{"scan.queue_size", func(c *config.Config, v *viper.Viper, k string) { c.Scan.QueueSize = v.GetInt(k) }},
	{"scan.enable_publish", func(c *config.Config, v *viper.Viper, k string) { c.Scan.EnablePublish = v.GetBool(k) }},
	{"scan.enable_banner_grab", func(c *config.Config, v *viper.Viper, k string) { c.Scan.EnableBannerGrab = v.GetBool(k) }},
	{"scan.skip_host_check", func(c *config.Config, v *viper.Viper, k string) { c.Scan.SkipHostCheck = v.GetBool(k) }},
	{"scan.drain_timeout", func(c *config.Config, v *viper.Viper, k string) { c.Scan.DrainTimeout = v.GetDuration(k) }},

	{"discovery.enabled", func(c *config.Config, v *viper.Viper, k string) { c.Discovery.Enabled = v.GetBool(k) }},
	{"resolver.dns_server", func(c *config.Config, v *viper.Viper, k string) { c.Resolver.DNSServer = v.GetString(k) }},
	{"resolver.enable_mdns", func(c *config.Config, v *viper.Viper, k string) { c.Resolver.EnableMDNS = v.GetBool(k) }},
	{"resolver.snmp_community", func(c *config.Config, v *viper.Viper, k string) { c.Resolver.SNMPCommunity = v.GetString(k) }},
	{"services.enabled", func(c *config.Config, v *viper.Viper, k string) { c.Services.Enabled = v.GetBool(k) }},

	{"publish.backend", func(c *config.Config, v *viper.Viper, k string) { c.Publish.Backend = v.GetString(k) }},
	{"publish.redis_addr", func(c *config.Config, v *viper.Viper, k string) { c.Publish.RedisAddr = v.GetString(k) }},
	{"publish.password", func(c *config.Config, v *viper.Viper, k string) { c.Publish.Password = v.GetString(k) }},
	{"publish.topic_prefix", func(c *config.Config, v *viper.Viper, k string) { c.Publish.TopicPrefix = v.GetString(k) }},

	{"history.enabled", func(c *config.Config, v *viper.Viper, k string) { c.History.Enabled = v.GetBool(k) }},
	{"history.host", func(c *config.Config, v *viper.Viper, k string) { c.History.Host = v.GetString(k) }},
	{"history.port", func(c *config.Config, v *viper.Viper, k string) { c.History.Port = v.GetInt(k) }},
	{"history.database", func(c *config.Config, v *viper.Viper, k string) { c.History.Database = v.GetString(k) }},
	{"history.username", func(c *config.Config, v *viper.Viper, k string) { c.History.Username = v.GetString(k) }},
	{"history.password", func(c *config.Config, v *viper.Viper, k string) { c.History.Password = v.GetString(k) }},

	{"api.enabled", func(c *config.Config, v *viper.Viper, k string) { c.API.Enabled = v.GetBool(k) }},
	{"api.listen_addr", func(c *config.Config, v *viper.Viper, k string) { c.API.ListenAddr = v.GetString(k) }},
	{"api.port", func(c *config.Config, v *viper.Viper, k string) { c.API.Port = v.GetInt(k) }},
	{"api.api_keys", func(c *config.Config, v *viper.Viper, k string) { c.API.APIKeys = v.GetStringSlice(k) }},

	{"daemon.pid_file", func(c *config.Config, v *viper.Viper, k string) { c.Daemon.PIDFile = v.GetString(k) }},
	{"daemon.scan_on_start", func(c *config.Config, v *viper.Viper, k string) { c.Daemon.ScanOnStart = v.GetBool(k) }},

	{"logging.level", func(c *config.Config, v *viper.Viper, k string) {
		c.Logging.Level = logging.LogLevel(v.GetString(k))
	}},
	{"logging.format", func(c *config.Config, v *viper.Viper, k string) {
		c.Logging.Format = logging.LogFormat(v.GetString(k))
	}},
}

// applyOverrides layers viper values (flags, RECONNODE_* variables) over cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(cfg, v, o.key)
		}
	}
}

// bindFlag binds a command flag to a config key so that an explicit flag
// overrides the file and the environment.
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", key, err)
	}
}
