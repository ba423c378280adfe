// Package cli provides the command-line interface of the reconnode network
// recon node. It implements the Cobra command tree: one-shot scans, the
// long-running daemon, queries against a running node and configuration
// helpers.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
)

const (
	envPrefix         = "RECONNODE"
	defaultConfigName = "config"
	defaultEnvFile    = ".env"

	// exitStartup is the exit status for configuration and startup failures.
	exitStartup = 2
)

var (
	cfgFile string
	envFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reconnode",
	Short: "Concurrent network reconnaissance node",
	Long: `reconnode discovers live hosts on a /24 network, probes their TCP ports
with a fixed worker pool, classifies the services it finds into a device
profile and assigns every endpoint a risk score.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.IsFatal(err) {
			os.Exit(exitStartup)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default is ./.env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig loads dotenv files, then points viper at the config file and
// the RECONNODE_* environment.
func initConfig() {
	loadEnvFile()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.reconnode")
		viper.SetConfigType("yaml")
		viper.SetConfigName(defaultConfigName)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadEnvFile loads --env-file, or ./.env when it exists. Variables already
// set in the environment win.
func loadEnvFile() {
	path := envFile
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load env file %s: %v\n", path, err)
	}
}

// configFilePath returns the file the configuration is read from.
func configFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigName + ".yaml"
}

// loadConfig reads the YAML file over the defaults, applies flag and
// environment overrides, validates the result and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFilePath())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	initLogging(cfg.Logging)
	return cfg, nil
}

// initLogging initializes structured logging based on configuration.
func initLogging(cfg logging.Config) {
	if verbose {
		cfg.Level = logging.LevelDebug
		cfg.AddSource = true
	}

	logger, err := logging.New(cfg)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized", "level", cfg.Level, "format", cfg.Format)
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// setOutput redirects command output, used by tests.
func setOutput(w io.Writer) {
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
}
