package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chatstage/internal/types"
)

var compactRounds int

var compactCmd = &cobra.Command{
	Use:   "compact [conversation]",
	Short: "Compact recent conversation history into long-term memory",
	Long: `Summarizes the last N rounds of the conversation into a digest that gets
injected into every future turn. The previous digest is folded into the new
one; nothing is appended locally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := resolveConversation(ctx, a.store, args[0])
		if err != nil {
			return err
		}

		digest, err := a.orch.RequestMemoryCompaction(ctx, conv.ID, compactRounds)
		if errors.Is(err, types.ErrBusy) {
			return fmt.Errorf("a compaction is already running for this conversation")
		}
		if err != nil {
			return err
		}

		fmt.Printf("Memory updated for %s:\n%s\n", conv.Name, digest)
		return nil
	},
}

func init() {
	compactCmd.Flags().IntVar(&compactRounds, "rounds", 0, "Rounds of history to look back (0 = configured default)")
}
