package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/store"
)

var (
	tokenOrgID int64
	tokenLabel string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue EMAIL",
	Short: "Issue an API token for a member. The token is printed once.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		u, err := store.NewUserStore(e.db).GetByEmail(args[0])
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("no user with e-mail %s", args[0])
		}
		m, err := store.NewOrgStore(e.db).GetMember(tokenOrgID, u.ID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%s is not a member of organisation %d", u.Email, tokenOrgID)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = e.cfg.Tokens.TTL
		}
		token, sess, err := store.NewSessionStore(e.db).Issue(u.ID, tokenOrgID, tokenLabel, ttl)
		if err != nil {
			return err
		}
		e.logger.Info("token issued", "session_id", sess.ID, "user_id", u.ID, "org_id", tokenOrgID)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Int64Var(&tokenOrgID, "org", 0, "organisation id")
	tokenIssueCmd.Flags().StringVar(&tokenLabel, "label", "cli", "label shown in the session list")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")
	tokenIssueCmd.MarkFlagRequired("org")
	tokenCmd.AddCommand(tokenIssueCmd)
	RootCmd.AddCommand(tokenCmd)
}
