package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeChannel string

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every archived message of a channel",
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().StringVar(&purgeChannel, "channel", "", "Channel id to purge")
	_ = purgeCmd.MarkFlagRequired("channel")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.store.DeleteChannelMessages(ctx, purgeChannel)
	if err != nil {
		return fmt.Errorf("failed to purge channel %s: %w", purgeChannel, err)
	}

	a.log.InfoContext(ctx, "Channel archive purged", "channel_id", purgeChannel, "deleted", deleted)
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d message revisions from channel %s\n", deleted, purgeChannel)
	return nil
}
