package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clickstream/api/tracker"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the persisted session id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := agentConfig(cmd)
		if err != nil {
			return err
		}
		t, err := tracker.New(cfg)
		if err != nil {
			return err
		}

		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			if err := t.Reset(); err != nil {
				return fmt.Errorf("reset session: %w", err)
			}
		}
		if userID, _ := cmd.Flags().GetString("identify"); userID != "" {
			if err := t.Identify(userID, nil); err != nil {
				return fmt.Errorf("identify: %w", err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), t.SessionID())
		if userID := t.UserID(); userID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "user: %s\n", userID)
		}
		return nil
	},
}

func init() {
	sessionCmd.Flags().Bool("reset", false, "Forget the identity and start a new session")
	sessionCmd.Flags().String("identify", "", "Associate a user id with the session")
}
