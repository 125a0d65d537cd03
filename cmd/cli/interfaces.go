package cli

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/lanscope/internal/netinfo"
)

var interfacesOutput string

// interfacesCmd represents the interfaces command
var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List local IPv4 interfaces",
	Long: `List the up, non-loopback IPv4 interfaces of this machine. The first
private interface provides the default --base for scan and monitor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ifaces, err := netinfo.Interfaces()
		if err != nil {
			return err
		}
		if interfacesOutput == outputJSON {
			return writeJSON(cmd.OutOrStdout(), ifaces)
		}
		renderInterfaces(cmd.OutOrStdout(), ifaces)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
	interfacesCmd.Flags().StringVarP(&interfacesOutput, "output", "o", outputTable, "output format: table or json")
}

func renderInterfaces(w io.Writer, ifaces []netinfo.Interface) {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Address", "Network", "Base", "MAC", "Private")
	for _, iface := range ifaces {
		_ = table.Append([]string{
			iface.Name,
			iface.IP,
			iface.CIDR,
			iface.BaseIP(),
			orDash(iface.MAC),
			strconv.FormatBool(iface.Private),
		})
	}
	_ = table.Render()
}
