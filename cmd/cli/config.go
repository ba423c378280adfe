package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/reconnode/internal/auth"
	"github.com/anstrom/reconnode/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, validate and show configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the configuration with overrides and report problems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: scanning %s hosts %d-%d ports %d-%d\n",
			cfg.Scan.Network(), cfg.Scan.StartIP, cfg.Scan.EndIP, cfg.Scan.StartPort, cfg.Scan.EndPort)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Publish.Password = redact(cfg.Publish.Password)
		cfg.History.Password = redact(cfg.History.Password)
		for i := range cfg.API.APIKeys {
			cfg.API.APIKeys[i] = redact(cfg.API.APIKeys[i])
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(cfg)
	},
}

var configGenKeyPlain bool

var configGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate an API key and the bcrypt hash to put in api.api_keys",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key: %s\n", key)
		if configGenKeyPlain {
			return nil
		}
		hash, err := auth.HashAPIKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Config entry (%s): %s\n", auth.CreateDisplayPrefix(key), hash)
		return nil
	},
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd, configGenKeyCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configGenKeyCmd.Flags().BoolVar(&configGenKeyPlain, "no-hash", false, "Only print the key")
}
