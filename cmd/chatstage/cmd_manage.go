package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"chatstage/internal/lorebook"
	"chatstage/internal/types"
)

// Participant management

var (
	participantGender       string
	participantPersonality  string
	participantRelationship string
)

var participantCmd = &cobra.Command{
	Use:   "participant",
	Short: "Manage roleplay characters",
}

var participantAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p := types.Participant{
			ID:           uuid.NewString(),
			Name:         args[0],
			Gender:       participantGender,
			Personality:  participantPersonality,
			Relationship: participantRelationship,
			CreatedAt:    time.Now(),
		}
		if err := st.AddParticipant(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var participantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		all, err := st.ListParticipants(cmd.Context())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No characters yet. Create one with: chatstage participant add")
			return nil
		}
		for _, p := range all {
			fmt.Printf("%-36s  %-12s  %s\n", p.ID, p.Name, p.Relationship)
		}
		return nil
	},
}

// Conversation management

var (
	conversationSelfName string
	conversationGroup    bool
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Manage conversations",
}

var conversationAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		kind := types.ConversationDirect
		if conversationGroup {
			kind = types.ConversationGroup
		}
		c := types.Conversation{
			ID:           uuid.NewString(),
			Name:         args[0],
			Kind:         kind,
			SelfName:     conversationSelfName,
			LastActiveAt: time.Now(),
		}
		if err := st.AddConversation(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", c.Name, c.ID)
		return nil
	},
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		all, err := st.ListConversations(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range all {
			members, err := st.ListMembers(cmd.Context(), c.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%-36s  %-16s  %s, %d member(s)\n", c.ID, c.Name, c.Kind, len(members))
		}
		return nil
	},
}

var conversationJoinCmd = &cobra.Command{
	Use:   "join [conversation] [participant-id...]",
	Short: "Add characters to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		conv, err := resolveConversation(ctx, st, args[0])
		if err != nil {
			return err
		}
		for _, id := range args[1:] {
			p, err := st.GetParticipant(ctx, id)
			if err != nil {
				return fmt.Errorf("participant %s: %w", id, err)
			}
			if err := st.AddMember(ctx, conv.ID, p.ID); err != nil {
				return err
			}
			fmt.Printf("%s joined %s\n", p.Name, conv.Name)
		}
		return nil
	},
}

// Relationship facts

var factBackstory string

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Manage relationship facts between characters",
}

var factAddCmd = &cobra.Command{
	Use:   "add [participant-a] [participant-b] [label]",
	Short: "Record a relationship between two characters",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		for _, id := range args[:2] {
			if id == types.SelfID {
				continue
			}
			if _, err := st.GetParticipant(ctx, id); err != nil {
				return fmt.Errorf("participant %s: %w", id, err)
			}
		}
		f := types.RelationshipFact{
			ID:        uuid.NewString(),
			AID:       args[0],
			BID:       args[1],
			Label:     args[2],
			Backstory: factBackstory,
		}
		if err := st.AddFact(ctx, f); err != nil {
			return err
		}
		fmt.Printf("Recorded fact %s\n", f.ID)
		return nil
	},
}

var factListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relationship facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		facts, err := st.ListFacts(cmd.Context())
		if err != nil {
			return err
		}
		for _, f := range facts {
			fmt.Printf("%-36s  %s <-> %s: %s\n", f.ID, f.AID, f.BID, f.Label)
		}
		return nil
	},
}

var factDeleteCmd = &cobra.Command{
	Use:   "delete [fact-id]",
	Short: "Delete a relationship fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		return st.DeleteFact(cmd.Context(), args[0])
	},
}

// Lorebook management

var lorebookCmd = &cobra.Command{
	Use:   "lorebook",
	Short: "Manage the lorebook",
}

var lorebookImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a lorebook YAML file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := lorebook.Import(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entries and %d style presets\n", len(f.Entries), len(f.Styles))
		return nil
	},
}

func init() {
	participantAddCmd.Flags().StringVar(&participantGender, "gender", "", "Character gender")
	participantAddCmd.Flags().StringVar(&participantPersonality, "personality", "", "Personality sketch")
	participantAddCmd.Flags().StringVar(&participantRelationship, "relationship", "", "Relationship to the user persona")
	participantCmd.AddCommand(participantAddCmd)
	participantCmd.AddCommand(participantListCmd)

	conversationAddCmd.Flags().StringVar(&conversationSelfName, "self", "我", "User persona display name")
	conversationAddCmd.Flags().BoolVar(&conversationGroup, "group", false, "Create a group conversation")
	conversationCmd.AddCommand(conversationAddCmd)
	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationJoinCmd)

	factAddCmd.Flags().StringVar(&factBackstory, "backstory", "", "How the relationship came to be")
	factCmd.AddCommand(factAddCmd)
	factCmd.AddCommand(factListCmd)
	factCmd.AddCommand(factDeleteCmd)

	lorebookCmd.AddCommand(lorebookImportCmd)
}
