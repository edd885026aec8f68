package assembler

import (
	"strings"
	"testing"

	"chatstage/internal/types"
)

func sampleInput() BuildInput {
	return BuildInput{
		Conversation: types.Conversation{
			ID:       "c1",
			Name:     "同学群",
			Kind:     types.ConversationGroup,
			SelfName: "我",
		},
		Members: []types.Participant{
			{ID: "p1", Name: "小明", Gender: "male", Personality: "loud and cheerful", Relationship: "classmate"},
			{ID: "p2", Name: "小红", Personality: "quiet"},
		},
		Presets: []types.StylePreset{
			{Name: "tone", Prompt: "Reply casually.", Enabled: true},
			{Name: "off", Prompt: "NEVER SHOWN", Enabled: false},
		},
		Facts: []types.RelationshipFact{
			{ID: "f1", AID: "p1", BID: types.SelfID, Label: "deskmates"},
		},
		History: []types.Message{
			{ID: "m1", AuthorID: types.SelfID, AuthorName: "我", Kind: types.KindText, Content: "明天去学校吗"},
			{ID: "m2", AuthorID: "p1", AuthorName: "小明", Kind: types.KindText, Content: "去啊", ReplyToID: "m1"},
		},
		Now: "2024-06-01 20:15",
	}
}

func TestBuild_SectionOrder(t *testing.T) {
	blocks := Build(sampleInput(), Options{})

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Role != "system" || blocks[1].Role != "user" {
		t.Fatalf("unexpected roles: %s, %s", blocks[0].Role, blocks[1].Role)
	}

	system, user := blocks[0].Text, blocks[1].Text

	// Static setup in the system block, in fixed order.
	wantOrder := []string{"## Style", "## Characters", "## Relationships"}
	last := -1
	for _, h := range wantOrder {
		idx := strings.Index(system, h)
		if idx < 0 {
			t.Fatalf("missing section %q in system block:\n%s", h, system)
		}
		if idx < last {
			t.Errorf("section %q out of order", h)
		}
		last = idx
	}

	// Volatile content in the user block, history before memory before task.
	hIdx := strings.Index(user, "## Recent messages")
	tIdx := strings.Index(user, "## Task")
	if hIdx < 0 || tIdx < 0 || hIdx > tIdx {
		t.Errorf("history/task sections misordered:\n%s", user)
	}
}

func TestBuild_ProfileAndFactRendering(t *testing.T) {
	blocks := Build(sampleInput(), Options{})
	system := blocks[0].Text

	if !strings.Contains(system, "小明 (male), classmate: loud and cheerful") {
		t.Errorf("profile line missing:\n%s", system)
	}
	// Fact ids are resolved to display names, self id to the self name.
	if !strings.Contains(system, "小明 and 我: deskmates") {
		t.Errorf("fact line missing:\n%s", system)
	}
}

func TestBuild_ReplyContextSynthesis(t *testing.T) {
	blocks := Build(sampleInput(), Options{})
	user := blocks[1].Text

	if !strings.Contains(user, "小明: [re 我: 明天去学校吗] 去啊") {
		t.Errorf("reply annotation missing:\n%s", user)
	}
}

func TestBuild_EmptyHistoryPlaceholder(t *testing.T) {
	in := sampleInput()
	in.History = nil

	blocks := Build(in, Options{})
	if !strings.Contains(blocks[1].Text, "(no messages yet)") {
		t.Errorf("expected placeholder for empty history:\n%s", blocks[1].Text)
	}
}

func TestBuild_TimeOverrideWins(t *testing.T) {
	in := sampleInput()
	in.Conversation.TimeOverride = "古代，午时"

	blocks := Build(in, Options{})
	user := blocks[1].Text
	if !strings.Contains(user, "古代，午时") {
		t.Errorf("time override missing:\n%s", user)
	}
	if strings.Contains(user, "2024-06-01") {
		t.Errorf("wall clock should be replaced by override:\n%s", user)
	}
}

func TestBuild_LorebookTriggeredByRecentWindow(t *testing.T) {
	in := sampleInput()
	in.Lorebook = []types.LorebookEntry{
		{ID: "l1", Keyword: "学校", Content: "The school sits on a hill.", Enabled: true},
		{ID: "l2", Keyword: "龙", Content: "NEVER TRIGGERED", Enabled: true},
		{ID: "l3", Keyword: "学校", Content: "DISABLED", Enabled: false},
	}

	blocks := Build(in, Options{})
	system := blocks[0].Text
	if !strings.Contains(system, "The school sits on a hill.") {
		t.Errorf("triggered entry missing:\n%s", system)
	}
	if strings.Contains(system, "NEVER TRIGGERED") || strings.Contains(system, "DISABLED") {
		t.Errorf("untriggered/disabled entry leaked:\n%s", system)
	}
}

func TestBuild_NonTextKindsRenderAsMarkers(t *testing.T) {
	in := sampleInput()
	in.History = append(in.History, types.Message{
		ID: "m3", AuthorID: "p2", AuthorName: "小红",
		Kind: types.KindTransfer, Payload: map[string]string{"amount": "5.20"},
	})

	blocks := Build(in, Options{})
	if !strings.Contains(blocks[1].Text, "小红: <transfer 5.20>") {
		t.Errorf("transfer marker missing:\n%s", blocks[1].Text)
	}
}

func TestBuild_HistoryWindowApplied(t *testing.T) {
	in := sampleInput()
	in.History = nil
	for i := 0; i < 100; i++ {
		in.History = append(in.History, types.Message{
			ID: "m" + string(rune('a'+i%26)), AuthorID: "p1", AuthorName: "小明",
			Kind: types.KindText, Content: strings.Repeat("x", 1) + "-" + string(rune('0'+i%10)),
		})
	}

	blocks := Build(in, Options{HistoryWindow: 5})
	lines := strings.Count(strings.SplitN(strings.SplitN(blocks[1].Text, "## Recent messages\n", 2)[1], "\n\n", 2)[0], "\n") + 1
	if lines != 5 {
		t.Errorf("expected 5 history lines, got %d", lines)
	}
}

func TestBuild_TargetNamesRestrictInstruction(t *testing.T) {
	in := sampleInput()
	in.TargetNames = []string{"小红"}

	blocks := Build(in, Options{})
	task := blocks[1].Text[strings.Index(blocks[1].Text, "## Task"):]
	if !strings.Contains(task, "小红") || strings.Contains(task, "小明") {
		t.Errorf("instruction should only name targets:\n%s", task)
	}
}

func TestBuild_DigestUnderMustReadHeading(t *testing.T) {
	in := sampleInput()
	in.Digest = "- 小明 owes the user lunch"

	blocks := Build(in, Options{})
	user := blocks[1].Text
	if !strings.Contains(user, "## Long-term memory (must read)") {
		t.Errorf("must-read heading missing:\n%s", user)
	}
	if !strings.Contains(user, "owes the user lunch") {
		t.Errorf("digest content missing:\n%s", user)
	}
}
