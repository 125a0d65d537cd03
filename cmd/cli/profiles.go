package cli

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/lanscope/internal/profiles"
)

const maxPortsBeforeTruncate = 12

// profilesCmd represents the profiles command.
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List port profiles",
	Long: `List the port profiles accepted by --ports. Custom profiles are read
from the scanning.profiles section of the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm, err := loadProfiles(cfg)
		if err != nil {
			return err
		}
		renderProfiles(cmd.OutOrStdout(), pm.GetAll())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func renderProfiles(w io.Writer, all []*profiles.Profile) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Description", "Ports", "Built-in")
	for _, p := range all {
		_ = table.Append([]string{
			p.ID,
			orDash(p.Description),
			summarizePorts(p.Ports),
			strconv.FormatBool(p.BuiltIn),
		})
	}
	_ = table.Render()
}

// summarizePorts lists the ports, truncated with a count of the remainder.
func summarizePorts(ports []int) string {
	shown := ports
	if len(ports) > maxPortsBeforeTruncate {
		shown = ports[:maxPortsBeforeTruncate]
	}
	s := formatPorts(shown, nil)
	if rest := len(ports) - len(shown); rest > 0 {
		s += " (+" + strconv.Itoa(rest) + " more)"
	}
	return s
}
