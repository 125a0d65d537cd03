package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/lanscope/internal/resolver"
)

var (
	resolveOutput      string
	resolveConcurrency int
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <ip> [ip...]",
	Short: "Identify devices by address",
	Long: `Resolve the identity of one or more IPv4 addresses from reverse DNS,
mDNS or SNMP names, the ARP neighbor table and the hardware vendor prefix,
without probing ports.`,
	Example: `  lanscope resolve 192.168.1.1
  lanscope resolve 192.168.1.10 192.168.1.11 --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", outputTable, "output format: table or json")
	resolveCmd.Flags().IntVarP(&resolveConcurrency, "concurrency", "c", 0,
		"addresses resolved at once (default from config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	if resolveOutput != outputTable && resolveOutput != outputJSON {
		return fmt.Errorf("invalid --output %q: use table or json", resolveOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	concurrency := resolveConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Resolver.BatchConcurrency
	}

	ctx, cancel := interruptContext(cmd.Context(), nil)
	defer cancel()

	identities := eng.resolver.ResolveBatch(ctx, args, concurrency)
	if resolveOutput == outputJSON {
		return writeJSON(cmd.OutOrStdout(), identities)
	}
	renderIdentities(cmd.OutOrStdout(), identities)
	return nil
}

func renderIdentities(w io.Writer, identities []resolver.DeviceIdentity) {
	table := tablewriter.NewWriter(w)
	table.Header("IP", "Hostname", "MAC", "Vendor", "Type", "Description", "Confidence", "Sources")
	for _, id := range identities {
		_ = table.Append([]string{
			id.IP,
			orDash(id.Hostname),
			orDash(id.MAC),
			orDash(id.Vendor),
			orDash(id.DeviceType),
			orDash(id.Description),
			strconv.Itoa(id.Confidence) + "%",
			orDash(strings.Join(id.Sources, ",")),
		})
	}
	_ = table.Render()
}
