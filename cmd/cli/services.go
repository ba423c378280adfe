package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/reconnode/internal/services"
)

var servicesScan bool

// servicesCmd shows announced services and SMB shares.
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show mDNS services and SMB shares found by a running node",
	Example: `  reconnode services
  reconnode services --scan`,
	RunE: withClient("list services", runServices),
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default: configured api address)")
	servicesCmd.Flags().BoolVar(&servicesScan, "scan", false, "Run a new service scan before listing")
}

func runServices(ctx context.Context, cmd *cobra.Command, c *APIClient) error {
	var report services.Report
	if servicesScan {
		if err := c.Post(ctx, "/services/scan", &report); err != nil {
			return err
		}
	} else if err := c.Get(ctx, "/services", &report); err != nil {
		return err
	}
	return renderServices(cmd.OutOrStdout(), report)
}

func renderServices(w io.Writer, report services.Report) error {
	if report.ScannedAt.IsZero() {
		_, err := fmt.Fprintln(w, "No service scan has run yet.")
		return err
	}

	fmt.Fprintf(w, "Scanned at %s\n", report.ScannedAt.Local().Format("2006-01-02 15:04:05"))
	if len(report.Services) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Name", "Kind", "Address", "Port", "Hostname")
		for _, s := range report.Services {
			_ = table.Append([]string{s.Name, s.Description, s.IP, strconv.Itoa(int(s.Port)), s.Hostname})
		}
		if err := table.Render(); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, "No mDNS services announced.")
	}

	if len(report.Shares) == 0 {
		_, err := fmt.Fprintln(w, "No SMB servers found.")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Address", "Port", "Hostname", "Null session", "Risk")
	for _, sh := range report.Shares {
		null := "no"
		if sh.NullSession {
			null = "yes"
		}
		_ = table.Append([]string{sh.IP, strconv.Itoa(int(sh.Port)), sh.Hostname, null, sh.Risk})
	}
	if err := table.Render(); err != nil {
		return err
	}
	if report.Vulnerable > 0 {
		fmt.Fprintf(w, "%d server(s) accept anonymous sessions\n", report.Vulnerable)
	}
	return nil
}
