package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

var (
	userName  string
	userOrgID int64
	userRole  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Add a user to an organisation, creating the user if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch userRole {
		case model.RoleAdmin, model.RoleSupervisor, model.RoleWorker:
		default:
			return fmt.Errorf("role must be admin, supervisor or worker, got %q", userRole)
		}
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		orgs := store.NewOrgStore(e.db)
		org, err := orgs.GetByID(userOrgID)
		if err != nil {
			return err
		}
		if org == nil {
			return fmt.Errorf("organisation %d not found", userOrgID)
		}

		users := store.NewUserStore(e.db)
		u, err := users.GetByEmail(args[0])
		if err != nil {
			return err
		}
		if u == nil {
			name := userName
			if name == "" {
				name = args[0]
			}
			if u, err = users.Create(args[0], name); err != nil {
				return err
			}
		}

		m, err := orgs.GetMember(org.ID, u.ID)
		if err != nil {
			return err
		}
		if m != nil {
			if err := orgs.UpdateMemberRole(org.ID, u.ID, userRole); err != nil {
				return err
			}
		} else if _, err := orgs.AddMember(org.ID, u.ID, userRole); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d %s is %s in %q\n", u.ID, u.Email, userRole, org.Name)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name (defaults to the e-mail address)")
	userAddCmd.Flags().Int64Var(&userOrgID, "org", 0, "organisation id")
	userAddCmd.Flags().StringVar(&userRole, "role", model.RoleWorker, "admin, supervisor or worker")
	userAddCmd.MarkFlagRequired("org")
	userCmd.AddCommand(userAddCmd)
	RootCmd.AddCommand(userCmd)
}
