package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/gepeto/internal/config"
	"github.com/zulandar/gepeto/internal/conversation"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <participant-id>",
		Short: "Show a participant's recent conversation turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of most recent turns to show")
	return cmd
}

func runHistory(cmd *cobra.Command, participantID string, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("history: --limit must be positive")
	}
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	store, err := conversation.NewStore(conversation.StoreOpts{DB: gormDB})
	if err != nil {
		return err
	}

	turns, err := store.GetRecentMessages(context.Background(), participantID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(turns) == 0 {
		fmt.Fprintf(out, "No turns for %s\n", participantID)
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(out, "%s  %-5s  %-16s  %s\n",
			t.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			t.WriterType,
			t.Writer,
			strings.ReplaceAll(t.Content, "\n", " "))
	}
	return nil
}
