package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/reconnode/internal/daemon"
)

const (
	daemonStopTimeout      = 30 * time.Second
	daemonStopPollInterval = 200 * time.Millisecond
	defaultPIDFile         = "/tmp/reconnode.pid"
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run and control the long-running reconnode node",
	Long: `The daemon runs scan cycles on the configured interval, serves the HTTP API
and websocket progress stream, and records cycles to the history database
when enabled.`,
	Example: `  reconnode daemon start
  reconnode daemon start --port 9090 --no-scan-on-start
  reconnode daemon status
  reconnode daemon stop
  reconnode daemon reload`,
}

// daemonStartCmd runs the daemon in the foreground.
var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Long: `Start the reconnode daemon in the foreground. Use a process supervisor
(systemd, a container runtime) to run it in the background.

Signals: SIGTERM/SIGINT stop, SIGHUP reloads the config file, SIGUSR1 logs
status, SIGUSR2 toggles debug logging.`,
	RunE: runDaemonStart,
}

// daemonStopCmd represents the daemon stop command.
var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

// daemonStatusCmd represents the daemon status command.
var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	RunE:  runDaemonStatus,
}

// daemonReloadCmd sends SIGHUP to the daemon.
var daemonReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running daemon to reload its config file",
	RunE:  runDaemonReload,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonReloadCmd)

	daemonCmd.PersistentFlags().String("pid-file", defaultPIDFile, "File to store daemon process ID")
	bindFlag("daemon.pid_file", daemonCmd.PersistentFlags().Lookup("pid-file"))

	flags := daemonStartCmd.Flags()
	flags.Int("port", 0, "Port number for the API server")
	flags.String("listen", "", "Listen address for the API server")
	flags.Bool("no-api", false, "Disable the API server")
	flags.Bool("no-scan-on-start", false, "Wait for the first interval before scanning")

	bindFlag("api.port", flags.Lookup("port"))
	bindFlag("api.listen_addr", flags.Lookup("listen"))
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noAPI, _ := cmd.Flags().GetBool("no-api"); noAPI {
		cfg.API.Enabled = false
	}
	if noScan, _ := cmd.Flags().GetBool("no-scan-on-start"); noScan {
		cfg.Daemon.ScanOnStart = false
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = defaultPIDFile
	}

	d := daemon.New(cfg, configFilePath(), version)
	return d.Start()
}

// pidFilePath resolves the PID file from flags, environment and config.
func pidFilePath() string {
	if path := viper.GetString("daemon.pid_file"); path != "" {
		return path
	}
	return defaultPIDFile
}

// runningPID returns the PID of a live daemon.
func runningPID() (int, error) {
	path := pidFilePath()
	pid, err := daemon.ReadPIDFile(path)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("daemon is not running (no PID file at %s)", path)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	if !daemon.IsProcessRunning(pid) {
		return 0, fmt.Errorf("daemon is not running (stale PID %d in %s)", pid, path)
	}
	return pid, nil
}

func signalDaemon(sig syscall.Signal) (int, error) {
	pid, err := runningPID()
	if err != nil {
		return 0, err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return 0, fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return pid, nil
}

func runDaemonStop(cmd *cobra.Command, _ []string) error {
	pid, err := signalDaemon(syscall.SIGTERM)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopping daemon (PID %d)...\n", pid)

	deadline := time.Now().Add(daemonStopTimeout)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		}
		time.Sleep(daemonStopPollInterval)
	}
	return fmt.Errorf("daemon (PID %d) did not stop within %s", pid, daemonStopTimeout)
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	pid, err := runningPID()
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Status: stopped")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Status: running\nPID: %d\nPID file: %s\n", pid, pidFilePath())
	return nil
}

func runDaemonReload(cmd *cobra.Command, _ []string) error {
	pid, err := signalDaemon(syscall.SIGHUP)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reload requested (PID %d)\n", pid)
	return nil
}
