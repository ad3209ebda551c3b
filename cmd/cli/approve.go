package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"
)

var approveBy string

var approveCmd = &cobra.Command{
	Use:   "approve <migration-id>",
	Short: "Approve a high-risk migration for execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		approver := approveBy
		if approver == "" {
			if u, err := user.Current(); err == nil {
				approver = u.Username
			} else {
				approver = os.Getenv("USER")
			}
		}
		if approver == "" {
			return fmt.Errorf("could not determine approver, pass --by")
		}

		if err := a.Deprecation.Approve(ctx, args[0], approver); err != nil {
			return err
		}
		fmt.Printf("Migration %s approved by %s.\n", args[0], approver)
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Name recorded as the approver")
}
