package cli

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/store"
)

var orgThreshold float64

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organisations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an organisation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("organisation name is required")
		}
		if math.IsNaN(orgThreshold) || orgThreshold < 0 || orgThreshold > 100 {
			return fmt.Errorf("threshold must be between 0 and 100, got %v", orgThreshold)
		}
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		org, err := store.NewOrgStore(e.db).Create(name, orgThreshold)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created organisation %d %q (pass threshold %g%%)\n", org.ID, org.Name, org.PassThreshold)
		return nil
	},
}

var orgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organisations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		orgs, err := store.NewOrgStore(e.db).List()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTHRESHOLD")
		for _, o := range orgs {
			fmt.Fprintf(tw, "%d\t%s\t%g\n", o.ID, o.Name, o.PassThreshold)
		}
		return tw.Flush()
	},
}

func init() {
	orgCreateCmd.Flags().Float64Var(&orgThreshold, "threshold", 80, "pass threshold percentage")
	orgCmd.AddCommand(orgCreateCmd, orgListCmd)
	RootCmd.AddCommand(orgCmd)
}
