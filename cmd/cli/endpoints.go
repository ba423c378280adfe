package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/reconnode/internal/api/handlers"
	"github.com/anstrom/reconnode/internal/history"
	"github.com/anstrom/reconnode/internal/results"
)

var (
	serverURL      string
	endpointsSort  string
	endpointsLimit int
	endpointsOut   string
	historyLimit   int
	historyMigr    bool
)

// endpointsCmd lists endpoints known to a running node.
var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List endpoints discovered by a running node",
	Example: `  reconnode endpoints
  reconnode endpoints --sort risk --limit 10
  reconnode endpoints --server http://10.0.0.2:8080 --output json`,
	RunE: withClient("list endpoints", runEndpoints),
}

// statusCmd shows the scan state and cumulative statistics.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scan progress and statistics of a running node",
	RunE:  withClient("get status", runStatus),
}

// controlCmd issues lifecycle commands.
var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Start, pause or resume the scan on a running node",
}

// historyCmd lists recorded scan cycles.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scan cycles recorded by a running node",
	RunE:  withClient("list history", runHistory),
}

func init() {
	for _, c := range []*cobra.Command{endpointsCmd, statusCmd, controlCmd, historyCmd} {
		rootCmd.AddCommand(c)
		c.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default: configured api address)")
	}

	endpointsCmd.Flags().StringVar(&endpointsSort, "sort", "risk", "Order: risk or host")
	endpointsCmd.Flags().IntVar(&endpointsLimit, "limit", 0, "Maximum number of endpoints (0 = all)")
	endpointsCmd.Flags().StringVar(&endpointsOut, "output", outputTable, "Output format: table or json")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of cycles to list")
	historyCmd.Flags().BoolVar(&historyMigr, "migrations", false, "Show the schema migration state instead")

	for _, action := range []string{"start", "pause", "resume"} {
		action := action
		controlCmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("Send %s to the scan orchestrator", action),
			RunE: withClient(action+" scan", func(ctx context.Context, cmd *cobra.Command, c *APIClient) error {
				var resp handlers.StatusResponse
				if err := c.Post(ctx, "/scan/"+action, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: state=%s scan=%s\n", resp.Status, resp.State, resp.ScanID)
				return nil
			}),
		})
	}
}

// withClient loads the config, builds a client and maps API errors.
func withClient(operation string,
	fn func(ctx context.Context, cmd *cobra.Command, c *APIClient) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), apiClientTimeout)
		defer cancel()

		if err := fn(ctx, cmd, NewAPIClient(cfg, serverURL)); err != nil {
			return describeAPIError(err, operation)
		}
		return nil
	}
}

func runEndpoints(ctx context.Context, cmd *cobra.Command, c *APIClient) error {
	if endpointsOut != outputTable && endpointsOut != outputJSON {
		return fmt.Errorf("invalid output format %q (valid: table, json)", endpointsOut)
	}

	q := url.Values{}
	if endpointsSort != "" {
		q.Set("sort", endpointsSort)
	}
	if endpointsLimit > 0 {
		q.Set("limit", strconv.Itoa(endpointsLimit))
	}
	path := "/endpoints"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var views []results.EndpointView
	if err := c.Get(ctx, path, &views); err != nil {
		return err
	}
	if endpointsOut == outputJSON {
		return writeEndpointsJSON(cmd.OutOrStdout(), views)
	}
	return renderEndpointsTable(cmd.OutOrStdout(), views)
}

func runStatus(ctx context.Context, cmd *cobra.Command, c *APIClient) error {
	var progress handlers.ProgressResponse
	if err := c.Get(ctx, "/scan/progress", &progress); err != nil {
		return err
	}
	var stats results.Stats
	if err := c.Get(ctx, "/stats", &stats); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := progress.Progress
	fmt.Fprintf(out, "State: %s\n", progress.State)
	if progress.ScanID != "" {
		fmt.Fprintf(out, "Scan: %s\n", progress.ScanID)
	}
	fmt.Fprintf(out, "Progress: %d%% (%d/%d hosts, %d/%d ports)\n",
		p.PercentComplete, p.IPsScanned, p.TotalIPs, p.PortsScanned, p.TotalPorts)
	if p.CurrentHost != "" {
		fmt.Fprintf(out, "Current: %s:%d\n", p.CurrentHost, p.CurrentPort)
	}
	renderStats(out, stats)
	return nil
}

func runHistory(ctx context.Context, cmd *cobra.Command, c *APIClient) error {
	if historyMigr {
		var statuses []history.MigrationStatus
		if err := c.Get(ctx, "/history/migrations", &statuses); err != nil {
			return err
		}
		return renderMigrationTable(cmd.OutOrStdout(), statuses)
	}

	var records []history.CycleRecord
	if err := c.Get(ctx, "/history?limit="+strconv.Itoa(historyLimit), &records); err != nil {
		return err
	}
	return renderHistoryTable(cmd.OutOrStdout(), records)
}

func renderHistoryTable(w io.Writer, records []history.CycleRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No scan cycles recorded.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Started", "Duration", "Hosts", "Ports", "Open", "Drain timeout")
	for i := range records {
		r := &records[i]
		id := r.ID
		if len(id) > 8 {
			id = id[:8] + "..."
		}
		drain := "no"
		if r.DrainTimedOut {
			drain = "yes"
		}
		_ = table.Append([]string{
			id,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			(time.Duration(r.DurationSeconds) * time.Second).String(),
			strconv.FormatInt(r.IPsScanned, 10),
			strconv.FormatInt(r.PortsChecked, 10),
			strconv.Itoa(r.OpenResults),
			drain,
		})
	}
	return table.Render()
}

func renderMigrationTable(w io.Writer, statuses []history.MigrationStatus) error {
	table := tablewriter.NewWriter(w)
	table.Header("Migration", "Applied", "Applied at", "Modified")
	for _, st := range statuses {
		applied, at, modified := "no", "-", "no"
		if st.Applied {
			applied = "yes"
			at = st.AppliedAt.Local().Format("2006-01-02 15:04:05")
		}
		if st.Modified {
			modified = "yes"
		}
		_ = table.Append([]string{st.Name, applied, at, modified})
	}
	return table.Render()
}
