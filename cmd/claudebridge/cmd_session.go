package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/claudebridge/internal/state"
	"github.com/user/claudebridge/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionClearCmd, sessionPruneCmd)
}

func openRegistry(ctx context.Context) *state.Registry {
	cfg := loadConfig()
	registry := state.NewFileRegistry(cfg.SessionsFile(), cfg.SessionMaxAge())
	registry.Open(ctx)
	return registry
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage resumable sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		entries := openRegistry(ctx).Entries(ctx)
		if len(entries) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSESSION\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.Key,
				e.SessionID,
				e.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <key|all>",
	Short: "Forget one session or all of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		registry := openRegistry(ctx)

		if args[0] == "all" {
			entries := registry.Entries(ctx)
			for _, e := range entries {
				registry.Remove(ctx, e.Key)
			}
			if err := registry.Flush(ctx); err != nil {
				return fmt.Errorf("write sessions: %w", err)
			}
			fmt.Printf("Cleared %d sessions.\n", len(entries))
			return nil
		}

		key := types.ConversationKey(args[0])
		if _, ok := registry.Get(ctx, key); !ok {
			return fmt.Errorf("session not found: %s", args[0])
		}
		registry.Remove(ctx, key)
		if err := registry.Flush(ctx); err != nil {
			return fmt.Errorf("write sessions: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}

var sessionPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop sessions older than the configured max age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := loadConfig()
		// Not opened: Open would prune before we could count.
		registry := state.NewFileRegistry(cfg.SessionsFile(), cfg.SessionMaxAge())
		n := registry.Prune(ctx)
		if err := registry.Flush(ctx); err != nil {
			return fmt.Errorf("write sessions: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Pruned %d sessions.\n", n)
		return nil
	},
}
