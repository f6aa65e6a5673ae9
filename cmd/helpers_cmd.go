package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/helperd/internal/helper/builtin"
)

func helpersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helpers",
		Short: "Inspect the compiled-in helpers",
	}
	cmd.AddCommand(helpersListCmd())
	cmd.AddCommand(helpersShowCmd())
	return cmd
}

func helpersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List helper definitions",
		RunE: func(_ *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tTIMEOUT\tSCHEDULE\tFLAGS")
			for _, h := range builtin.All() {
				def := h.Definition()
				var flags []string
				if def.Internal {
					flags = append(flags, "internal")
				}
				if def.AdminOnly {
					flags = append(flags, "admin-only")
				}
				if def.BootRun {
					flags = append(flags, "boot-run")
				}
				if def.AllowExecutionTimeConfig {
					flags = append(flags, "user-schedule")
				}
				fmt.Fprintf(w, "%s\t%d\t%ds\t%s\t%s\n",
					def.ID, def.Priority, def.Timeout,
					strings.Join(def.Schedule, " | "), strings.Join(flags, ","))
			}
			return w.Flush()
		},
	}
}

func helpersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one helper definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, h := range builtin.All() {
				def := h.Definition()
				if def.ID != args[0] {
					continue
				}
				out, err := json.MarshalIndent(def, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			return fmt.Errorf("helper %s not found", args[0])
		},
	}
}
