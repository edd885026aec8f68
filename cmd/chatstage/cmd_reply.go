package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"chatstage/internal/store"
	"chatstage/internal/types"
)

var replySay string

var replyCmd = &cobra.Command{
	Use:   "reply [conversation] [target-ids...]",
	Short: "Request a group reply and watch it deliver",
	Long: `Runs one full conversation turn: assembles context, requests a completion,
splits it into per-character messages, and delivers them with typing delays.
With target ids only those characters are asked to speak.

Use --say to append a message from the user persona before the turn.`,
	Args: cobra.MinimumNArgs(1),
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

		if replySay != "" {
			if err := appendSelfMessage(ctx, a.store, conv, replySay); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", selfName(conv), replySay)
		}

		result, err := a.orch.RequestGroupReply(ctx, conv.ID, args[1:]...)
		if errors.Is(err, types.ErrBusy) {
			return fmt.Errorf("a reply is already delivering for this conversation, try again shortly")
		}
		if err != nil {
			return err
		}

		if result.ParseEmpty {
			fmt.Println("(no one replied)")
			return nil
		}
		fmt.Printf("Delivered %d message(s)", result.Delivered)
		if result.DroppedSpeakers > 0 || result.DroppedLines > 0 {
			fmt.Printf(" (dropped %d unknown speaker(s), %d untagged line(s))",
				result.DroppedSpeakers, result.DroppedLines)
		}
		fmt.Println()

		// Show the tail of the feed so the turn is visible.
		msgs, err := a.store.ListMessages(ctx, conv.ID, result.Delivered)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printMessage(m)
		}
		return nil
	},
}

func init() {
	replyCmd.Flags().StringVar(&replySay, "say", "", "Send a message from the user persona first")
}

func printMessage(m types.Message) {
	content := m.Content
	if m.Kind != types.KindText {
		content = types.RenderMarker(m)
	}
	fmt.Printf("  [%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.AuthorName, content)
}

func selfName(c types.Conversation) string {
	if c.SelfName != "" {
		return c.SelfName
	}
	return "me"
}

// appendSelfMessage persists a text message from the user persona.
func appendSelfMessage(ctx context.Context, st *store.LocalStore, conv types.Conversation, content string) error {
	if err := st.AppendMessage(ctx, types.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		AuthorID:       types.SelfID,
		AuthorName:     selfName(conv),
		Kind:           types.KindText,
		Content:        content,
		CreatedAt:      time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return st.TouchConversation(ctx, conv.ID)
}
