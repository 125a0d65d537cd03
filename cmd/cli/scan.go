package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/lanscope/internal/config"
	"github.com/anstrom/lanscope/internal/netinfo"
	"github.com/anstrom/lanscope/internal/profiles"
	"github.com/anstrom/lanscope/internal/scanning"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// scanOptions holds the flags shared by scan and monitor.
type scanOptions struct {
	base        string
	start       int
	end         int
	ports       string
	timeoutMS   int
	concurrency int
	fresh       bool
	output      string
	quiet       bool
}

var scanOpts scanOptions

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover live devices on a /24 range",
	Long: `Probe every address of a /24 range, scan the open ports of live hosts
and resolve their identity. Results are cached per range; repeat the scan
with --fresh to bypass the cache.

Press Ctrl-C once to stop after the current batch and print the hosts found
so far. Press it again to abort immediately.`,
	Example: `  lanscope scan
  lanscope scan --base 192.168.1 --start 1 --end 50
  lanscope scan --base 10.0.0 --ports web
  lanscope scan --ports 22,80,8000-8010 --timeout 1000 --output json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addScanFlags(scanCmd, &scanOpts)
	scanCmd.Flags().StringVarP(&scanOpts.output, "output", "o", outputTable, "output format: table or json")
	scanCmd.Flags().BoolVarP(&scanOpts.quiet, "quiet", "q", false, "do not print progress")
}

func addScanFlags(cmd *cobra.Command, opts *scanOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.base, "base", "", "first three octets, e.g. 192.168.1 (default: first private interface)")
	flags.IntVar(&opts.start, "start", 1, "first host octet")
	flags.IntVar(&opts.end, "end", 254, "last host octet")
	flags.StringVarP(&opts.ports, "ports", "p", "", "profile name or port list such as 22,80,8000-8010 (default from config)")
	flags.IntVar(&opts.timeoutMS, "timeout", 0, "per-host timeout in milliseconds (default from config)")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", 0, "hosts probed per batch (default from config)")
	flags.BoolVar(&opts.fresh, "fresh", false, "bypass the range cache")
}

// buildScanRequest turns flags and config into a request. suggestBase is
// consulted only when no base was given.
func buildScanRequest(opts scanOptions, cfg *config.Config, pm *profiles.Manager,
	suggestBase func() (string, error)) (scanning.ScanRequest, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.base), ".")
	if base == "" {
		suggested, err := suggestBase()
		if err != nil {
			return scanning.ScanRequest{}, fmt.Errorf("no --base given and %w", err)
		}
		base = suggested
	}

	spec := opts.ports
	if spec == "" {
		spec = cfg.Scanning.DefaultPorts
	}
	ports, err := pm.Resolve(spec)
	if err != nil {
		return scanning.ScanRequest{}, fmt.Errorf("invalid --ports: %w", err)
	}

	timeoutMS := opts.timeoutMS
	if timeoutMS == 0 {
		timeoutMS = int(cfg.Scanning.Timeout / time.Millisecond)
	}
	concurrency := opts.concurrency
	if concurrency == 0 {
		concurrency = cfg.Scanning.ConcurrencyLimit
	}

	return scanning.ScanRequest{
		BaseIP:           base,
		StartRange:       opts.start,
		EndRange:         opts.end,
		Ports:            ports,
		TimeoutMS:        timeoutMS,
		ConcurrencyLimit: concurrency,
		Fresh:            opts.fresh,
	}, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanOpts.output != outputTable && scanOpts.output != outputJSON {
		return fmt.Errorf("invalid --output %q: use table or json", scanOpts.output)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	req, err := buildScanRequest(scanOpts, cfg, eng.profiles, netinfo.SuggestBaseIP)
	if err != nil {
		return err
	}

	progressOut := cmd.ErrOrStderr()
	if scanOpts.quiet || scanOpts.output == outputJSON {
		progressOut = io.Discard
	}
	if err := eng.startOrchestrator(progressPrinter(progressOut)); err != nil {
		return err
	}

	ctx, cancel := interruptContext(cmd.Context(), eng.orchestrator.CancelScan)
	defer cancel()
	eng.serveHTTP(ctx, nil)

	for _, w := range scanning.Validate(req).Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}

	result, err := eng.orchestrator.ScanNetwork(ctx, req)
	if err != nil {
		return err
	}

	if scanOpts.output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderScanResult(cmd.OutOrStdout(), result)
	return nil
}

// progressPrinter renders progress on one terminal line and reports
// non-fatal cache problems.
func progressPrinter(w io.Writer) scanning.Listener {
	return func(e scanning.Event) {
		switch e.Type {
		case scanning.EventProgress:
			p := e.Progress
			fmt.Fprintf(w, "\r[%3d/%3d] %5.1f%%  %-15s  eta %s ", p.Completed, p.Total, p.Percentage,
				p.CurrentIP, (time.Duration(p.EstimatedRemainingMS) * time.Millisecond).Round(time.Second))
			if p.Completed == p.Total {
				fmt.Fprintln(w)
			}
		case scanning.EventCacheError:
			fmt.Fprintf(w, "\nWarning: %v\n", e.Err)
		case scanning.EventScanCancelled:
			fmt.Fprintln(w, "\nScan cancelled, showing hosts found so far")
		}
	}
}

func renderScanResult(w io.Writer, result *scanning.ScanResult) {
	if len(result.Hosts) == 0 {
		fmt.Fprintf(w, "No live hosts in %s\n", result.Range)
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("IP", "Hostname", "MAC", "Vendor", "Type", "OS", "Open Ports", "Confidence")
		for _, h := range result.Hosts {
			id := h.Identity
			_ = table.Append([]string{
				h.IP,
				orDash(id.Hostname),
				orDash(id.MAC),
				orDash(id.Vendor),
				orDash(id.DeviceType),
				orDash(h.OS),
				orDash(formatPorts(h.OpenPorts, h.Services)),
				strconv.Itoa(id.Confidence) + "%",
			})
		}
		_ = table.Render()
	}

	source := "scanned"
	if result.FromCache {
		source = "cached"
	}
	fmt.Fprintf(w, "\n%d live of %d %s hosts in %s (%s, provider %s)\n",
		len(result.Hosts), result.Scanned, source, result.Range,
		result.Duration.Round(time.Millisecond), result.Provider)
	if result.Cancelled {
		fmt.Fprintln(w, "Scan was cancelled; the range was not fully scanned.")
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// formatPorts renders "22/SSH, 80/HTTP".
func formatPorts(ports []int, services map[int]string) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if name, ok := services[p]; ok {
			parts = append(parts, fmt.Sprintf("%d/%s", p, name))
		} else {
			parts = append(parts, strconv.Itoa(p))
		}
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
