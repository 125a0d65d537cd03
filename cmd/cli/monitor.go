package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/monitor"
	"github.com/anstrom/lanscope/internal/netinfo"
	"github.com/anstrom/lanscope/internal/scanning"
)

var (
	monitorOpts     scanOptions
	monitorSchedule string
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Rescan a range on a schedule and report hosts going up or down",
	Long: `Scan a range immediately to record a baseline, then rescan it on a cron
schedule and print every host that appeared or disappeared. Scheduled runs
always bypass the range cache. Runs until interrupted.`,
	Example: `  lanscope monitor --base 192.168.1
  lanscope monitor --schedule "*/1 * * * *" --ports quick --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addScanFlags(monitorCmd, &monitorOpts)
	monitorCmd.Flags().StringVar(&monitorSchedule, "schedule", "", "five-field cron expression (default from config)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	req, err := buildScanRequest(monitorOpts, cfg, eng.profiles, netinfo.SuggestBaseIP)
	if err != nil {
		return err
	}
	if v := scanning.Validate(req); !v.OK {
		return errors.ErrInvalidRequest(v.Errors)
	}
	if err := eng.startOrchestrator(); err != nil {
		return err
	}

	schedule := monitorSchedule
	if schedule == "" {
		schedule = cfg.Monitor.Schedule
	}
	out := cmd.OutOrStdout()
	mon, err := monitor.New(eng.orchestrator, req, schedule,
		monitor.WithLogger(eng.logger),
		monitor.WithChangeHandler(func(changes []monitor.Change) { printChanges(out, changes) }))
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext(cmd.Context(), nil)
	defer cancel()
	eng.serveHTTP(ctx, mon)

	if _, err := mon.RunOnce(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Baseline: %d live hosts in %s\n", mon.Stats().LiveNow, req.Key())

	if err := mon.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Monitoring on schedule %q, next run %s\n", schedule,
		mon.Stats().NextRun.Format(time.DateTime))

	<-ctx.Done()
	mon.Stop()
	return nil
}

func printChanges(w io.Writer, changes []monitor.Change) {
	for _, c := range changes {
		line := fmt.Sprintf("%s  %-9s %s", c.At.Format(time.DateTime), c.Type, c.IP)
		if c.Host != nil {
			if name := c.Host.Identity.Hostname; name != "" {
				line += "  " + name
			}
			if ports := formatPorts(c.Host.OpenPorts, c.Host.Services); ports != "" {
				line += "  [" + ports + "]"
			}
		}
		fmt.Fprintln(w, line)
	}
}
