package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/reconnode/internal/daemon"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/results"
)

const (
	maxHostID = 255
	maxPort   = 65535

	outputTable = "table"
	outputJSON  = "json"
)

var (
	scanHosts   string
	scanPorts   string
	scanOutput  string
	scanMaxWait time.Duration
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan cycle and print the endpoints found",
	Long: `Run one scan cycle over the configured network without starting the
API or the periodic scheduler. Discovery, liveness checks, hostname
resolution and risk classification behave exactly as in the daemon.`,
	Example: `  reconnode scan
  reconnode scan --prefix 10.0.0. --hosts 1-50 --ports 1-1024
  reconnode scan --ports 22-443 --banners=false --output json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	flags := scanCmd.Flags()
	flags.String("prefix", "", "Network prefix, e.g. '192.168.1.'")
	flags.StringVar(&scanHosts, "hosts", "", "Host id range within the prefix, e.g. '1-254'")
	flags.StringVar(&scanPorts, "ports", "", "Port range, e.g. '1-1024'")
	flags.Int("workers", 0, "Number of worker goroutines")
	flags.Duration("timeout", 0, "Per-port connect timeout")
	flags.Bool("banners", true, "Capture service banners")
	flags.Bool("discovery", true, "Run the nmap discovery sweep first")
	flags.StringVar(&scanOutput, "output", outputTable, "Output format: table or json")
	flags.DurationVar(&scanMaxWait, "max-wait", 0, "Give up waiting after this long (0 waits forever)")

	bindFlag("scan.network_prefix", flags.Lookup("prefix"))
	bindFlag("scan.worker_threads", flags.Lookup("workers"))
	bindFlag("scan.timeout", flags.Lookup("timeout"))
	bindFlag("scan.enable_banner_grab", flags.Lookup("banners"))
	bindFlag("discovery.enabled", flags.Lookup("discovery"))
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanOutput != outputTable && scanOutput != outputJSON {
		return fmt.Errorf("invalid output format %q (valid: table, json)", scanOutput)
	}
	if err := applyRangeFlags(viper.GetViper()); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := daemon.BuildEngine(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	orch := engine.Orchestrator
	if !orch.StartScan() {
		return fmt.Errorf("scan could not be started")
	}
	logging.InfoScan("Scan started", cfg.Scan.Network(),
		"scan_id", orch.LastScanID(),
		"hosts", cfg.Scan.HostCount(),
		"ports", cfg.Scan.PortCount())

	waitCtx := ctx
	if scanMaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, scanMaxWait)
		defer cancel()
	}
	if err := orch.Wait(waitCtx); err != nil {
		return fmt.Errorf("scan did not finish: %w", err)
	}

	store := orch.Store()
	out := cmd.OutOrStdout()
	if scanOutput == outputJSON {
		return writeEndpointsJSON(out, store.EndpointViews(cfg.Scan.NetworkPrefix))
	}

	views := make([]results.EndpointView, 0)
	for _, ep := range store.EndpointsByRisk() {
		views = append(views, results.NewEndpointView(cfg.Scan.NetworkPrefix, ep))
	}
	if err := renderEndpointsTable(out, views); err != nil {
		return err
	}
	renderStats(out, store.Stats())
	return nil
}

// applyRangeFlags translates --hosts and --ports into viper keys.
func applyRangeFlags(v *viper.Viper) error {
	if scanHosts != "" {
		lo, hi, err := parseRange(scanHosts, maxHostID)
		if err != nil {
			return fmt.Errorf("invalid host range %q: %w", scanHosts, err)
		}
		v.Set("scan.start_ip", lo)
		v.Set("scan.end_ip", hi)
	}
	if scanPorts != "" {
		lo, hi, err := parseRange(scanPorts, maxPort)
		if err != nil {
			return fmt.Errorf("invalid port range %q: %w", scanPorts, err)
		}
		v.Set("scan.start_port", lo)
		v.Set("scan.end_port", hi)
	}
	return nil
}

// parseRange parses "N" or "N-M" with 1 <= N <= M <= limit.
func parseRange(s string, limit int) (lo, hi int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	lo, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}
	hi = lo
	if len(parts) == 2 {
		hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid end: %w", err)
		}
	}
	if lo < 1 || hi > limit {
		return 0, 0, fmt.Errorf("must be within 1-%d", limit)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("start %d is after end %d", lo, hi)
	}
	return lo, hi, nil
}

func writeEndpointsJSON(w io.Writer, views []results.EndpointView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

// renderEndpointsTable prints endpoints in the given order.
func renderEndpointsTable(w io.Writer, views []results.EndpointView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No endpoints found.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("IP", "Hostname", "Device", "Risk", "Ports", "Avg RTT", "Scans")

	for i := range views {
		v := &views[i]
		hostname := v.Hostname
		if hostname == "" {
			hostname = "-"
		}
		_ = table.Append([]string{
			v.IP,
			hostname,
			v.DeviceType,
			strconv.Itoa(int(v.RiskScore)),
			formatPorts(v.Ports),
			fmt.Sprintf("%dms", v.AvgResponseTime),
			strconv.FormatUint(uint64(v.ScanCount), 10),
		})
	}
	return table.Render()
}

func renderStats(w io.Writer, s results.Stats) {
	fmt.Fprintf(w, "\nScans: %d  Hosts scanned: %d  Ports checked: %d  Open: %d  Unique hosts: %d  Last: %ds\n",
		s.TotalScans, s.TotalIPsScanned, s.TotalPortsChecked, s.TotalOpenPorts, s.UniqueHosts, s.LastScanDuration)
}

const maxListedPorts = 8

func formatPorts(ports []uint16) string {
	parts := make([]string, 0, len(ports))
	for i, p := range ports {
		if i == maxListedPorts {
			parts = append(parts, fmt.Sprintf("+%d", len(ports)-maxListedPorts))
			break
		}
		parts = append(parts, strconv.Itoa(int(p)))
	}
	return strings.Join(parts, ",")
}
