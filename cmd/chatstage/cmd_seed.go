package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatstage/internal/store"
	"chatstage/internal/types"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo group with characters and a bit of history",
	Long: `Seeds a small after-school group chat: three classmates, relationship
facts, a couple of lorebook entries, and a short message history. Useful for
trying the reply and compact commands without setting everything up by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		conv, err := seedDemo(ctx, st)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded conversation %q (%s)\n", conv.Name, conv.ID)
		fmt.Printf("Try: chatstage reply %s --say 你们放学去哪\n", conv.ID)
		return nil
	},
}

func seedDemo(ctx context.Context, st *store.LocalStore) (types.Conversation, error) {
	characters := []types.Participant{
		{ID: uuid.NewString(), Name: "小明", Gender: "male", Personality: "嗓门大，爱起哄", Relationship: "同桌", CreatedAt: time.Now()},
		{ID: uuid.NewString(), Name: "小红", Gender: "female", Personality: "细心，记性好", Relationship: "班长", CreatedAt: time.Now()},
		{ID: uuid.NewString(), Name: "小刚", Gender: "male", Personality: "慢热，篮球队", Relationship: "前桌", CreatedAt: time.Now()},
	}

	// Characters, facts, and lorebook entries are independent rows; insert
	// them concurrently through the shared store handle.
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range characters {
		g.Go(func() error { return st.AddParticipant(gctx, p) })
	}
	g.Go(func() error {
		return st.AddFact(gctx, types.RelationshipFact{
			ID: uuid.NewString(), AID: characters[0].ID, BID: characters[1].ID,
			Label: "邻居", Backstory: "从小一个院子长大",
		})
	})
	g.Go(func() error {
		return st.PutLorebookEntry(gctx, types.LorebookEntry{
			ID: "kw:篮球赛", Keyword: "篮球赛", Content: "校篮球赛周五下午举行，小刚是主力", Enabled: true,
		})
	})
	g.Go(func() error {
		return st.PutStylePreset(gctx, types.StylePreset{
			Name: "casual", Prompt: "回复要口语化，像真实的学生聊天", Enabled: true,
		})
	})
	if err := g.Wait(); err != nil {
		return types.Conversation{}, err
	}

	conv := types.Conversation{
		ID:           uuid.NewString(),
		Name:         "放学别走",
		Kind:         types.ConversationGroup,
		SelfName:     "我",
		LastActiveAt: time.Now(),
	}
	if err := st.AddConversation(ctx, conv); err != nil {
		return types.Conversation{}, err
	}
	for _, p := range characters {
		if err := st.AddMember(ctx, conv.ID, p.ID); err != nil {
			return types.Conversation{}, err
		}
	}

	// History has ordering semantics, so it goes in sequentially.
	base := time.Now().Add(-10 * time.Minute)
	history := []struct {
		author types.Participant
		self   bool
		text   string
	}{
		{characters[0], false, "今天值日是谁来着"},
		{types.Participant{}, true, "是我，你们先走吧"},
		{characters[1], false, "我留下帮你擦黑板"},
	}
	for i, h := range history {
		m := types.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Kind:           types.KindText,
			Content:        h.text,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if h.self {
			m.AuthorID, m.AuthorName = types.SelfID, conv.SelfName
		} else {
			m.AuthorID, m.AuthorName = h.author.ID, h.author.Name
		}
		if err := st.AppendMessage(ctx, m); err != nil {
			return types.Conversation{}, err
		}
	}
	return conv, nil
}
