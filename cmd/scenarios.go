// File: cmd/scenarios.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenario table and the CRUD steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return listScenarios(cmd.OutOrStdout(), cfg)
		},
	}
}

func listScenarios(out io.Writer, cfg config.Interface) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCENARIO\tCATEGORY\tUSERNAME\tPASSWORD")
	for i, sc := range scenario.DefaultTable(cfg) {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, sc.Name, sc.Category, scenario.Printable(sc.Username), mask(sc))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CRUD STEP\tREQUIRES")
	for _, step := range scenario.CRUDSteps() {
		requires := step[1]
		if requires == "" {
			requires = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", step[0], requires)
	}
	return w.Flush()
}

// mask hides the password of scenarios that use the real test account.
func mask(sc scenario.Scenario) string {
	if sc.Category == scenario.CategoryValid || sc.Category == scenario.CategoryToken {
		return "********"
	}
	return scenario.Printable(sc.Password)
}
