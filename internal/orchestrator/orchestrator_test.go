package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"chatstage/internal/scheduler"
	"chatstage/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock advances its reading by each waited duration and fires
// immediately, so delivery pacing is observable without real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fired := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- fired
	return ch
}

func seedGroup(t *testing.T, repo *memRepo, names ...string) string {
	t.Helper()
	ctx := context.Background()
	const convID = "conv-1"
	if err := repo.AddConversation(ctx, types.Conversation{
		ID: convID, Name: "after school", Kind: types.ConversationGroup, SelfName: "我",
	}); err != nil {
		t.Fatalf("AddConversation: %v", err)
	}
	for i, name := range names {
		id := fmt.Sprintf("p-%d", i+1)
		if err := repo.AddParticipant(ctx, types.Participant{ID: id, Name: name}); err != nil {
			t.Fatalf("AddParticipant: %v", err)
		}
		if err := repo.AddMember(ctx, convID, id); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	return convID
}

func newTestOrchestrator(repo *memRepo, client types.LLMClient, clock scheduler.Clock) *Orchestrator {
	return New(repo, client, Options{
		Scheduler: scheduler.Config{
			MinDelay: time.Second,
			MaxDelay: 5 * time.Second,
			PerRune:  50 * time.Millisecond,
		},
		Clock: clock,
	})
}

func TestGroupReplyDeliversInParseOrder(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明", "小红", "小刚")

	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "[小明]hi\n[小红]hey", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	result, err := o.RequestGroupReply(context.Background(), convID)
	if err != nil {
		t.Fatalf("RequestGroupReply: %v", err)
	}
	if result.Delivered != 2 {
		t.Fatalf("Delivered = %d, want 2", result.Delivered)
	}

	msgs := repo.Messages(convID)
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].AuthorName != "小明" || msgs[0].Content != "hi" {
		t.Errorf("first message = %s %q", msgs[0].AuthorName, msgs[0].Content)
	}
	if msgs[1].AuthorName != "小红" || msgs[1].Content != "hey" {
		t.Errorf("second message = %s %q", msgs[1].AuthorName, msgs[1].Content)
	}
	if gap := msgs[1].CreatedAt.Sub(msgs[0].CreatedAt); gap < time.Second {
		t.Errorf("timestamp gap = %v, want >= min delay", gap)
	}
	for _, m := range msgs {
		if m.AuthorID == types.SelfID {
			t.Errorf("delivered message attributed to self: %+v", m)
		}
	}
}

func TestSecondReplyWhileDeliveringIsRejected(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			close(entered)
			<-proceed
			return "[小明]ok", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := o.RequestGroupReply(context.Background(), convID)
		done <- err
	}()

	<-entered
	_, err := o.RequestGroupReply(context.Background(), convID)
	if !errors.Is(err, types.ErrBusy) {
		t.Fatalf("concurrent call error = %v, want ErrBusy", err)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if got := len(repo.Messages(convID)); got != 1 {
		t.Fatalf("persisted %d messages, want 1", got)
	}
	if client.Calls() != 1 {
		t.Fatalf("gateway called %d times, want 1", client.Calls())
	}
}

func TestGroupReplyGuardReleasedAfterTurn(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "[小明]hi", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	for i := 0; i < 2; i++ {
		if _, err := o.RequestGroupReply(context.Background(), convID); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	if got := len(repo.Messages(convID)); got != 2 {
		t.Fatalf("persisted %d messages, want 2", got)
	}
}

func TestGroupReplyRejectsBadInputBeforeGateway(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	client := &MockLLMClient{}
	o := newTestOrchestrator(repo, client, newFakeClock())
	ctx := context.Background()

	if _, err := o.RequestGroupReply(ctx, "no-such-conversation"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown conversation error = %v, want ErrNotFound", err)
	}

	if _, err := o.RequestGroupReply(ctx, convID, "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown target error = %v, want ErrNotFound", err)
	}

	empty := "conv-empty"
	if err := repo.AddConversation(ctx, types.Conversation{ID: empty, Name: "empty"}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.RequestGroupReply(ctx, empty); !errors.Is(err, types.ErrNoMembers) {
		t.Errorf("memberless conversation error = %v, want ErrNoMembers", err)
	}

	if client.Calls() != 0 {
		t.Fatalf("gateway called %d times for rejected inputs, want 0", client.Calls())
	}
}

func TestGatewayFailureCommitsNothing(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")

	boom := errors.New("upstream unavailable")
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "", boom
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	_, err := o.RequestGroupReply(context.Background(), convID)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	if got := len(repo.Messages(convID)); got != 0 {
		t.Fatalf("persisted %d messages after gateway failure, want 0", got)
	}
	if client.Calls() != 1 {
		t.Fatalf("gateway called %d times, want exactly 1 (no retry)", client.Calls())
	}
}

func TestUnparsableCompletionIsNoticeNotError(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "随便写的一段话，没有标签", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	result, err := o.RequestGroupReply(context.Background(), convID)
	if err != nil {
		t.Fatalf("RequestGroupReply: %v", err)
	}
	if !result.ParseEmpty {
		t.Error("ParseEmpty = false, want true")
	}
	if result.Delivered != 0 {
		t.Errorf("Delivered = %d, want 0", result.Delivered)
	}
	if result.DroppedLines != 1 {
		t.Errorf("DroppedLines = %d, want 1", result.DroppedLines)
	}
	if got := len(repo.Messages(convID)); got != 0 {
		t.Fatalf("persisted %d messages, want 0", got)
	}
}

func TestTargetedReplyRestrictsSpeakers(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明", "小红")
	var prompt string
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			prompt = messages[len(messages)-1].Text
			return "[小红]到了吗", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	result, err := o.RequestGroupReply(context.Background(), convID, "p-2")
	if err != nil {
		t.Fatalf("RequestGroupReply: %v", err)
	}
	if result.Delivered != 1 {
		t.Fatalf("Delivered = %d, want 1", result.Delivered)
	}
	if !strings.Contains(prompt, "characters (小红)") {
		t.Errorf("task prompt does not restrict speakers to the target:\n%s", prompt)
	}
}

func TestCompactionPersistsDigestWholesale(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	ctx := context.Background()
	for i, line := range []string{"你今天来晚了", "闹钟没响", "下次叫你"} {
		author, name := "p-1", "小明"
		if i%2 == 1 {
			author, name = types.SelfID, "我"
		}
		if err := repo.AppendMessage(ctx, types.Message{
			ID: fmt.Sprintf("m-%d", i), ConversationID: convID,
			AuthorID: author, AuthorName: name,
			Kind: types.KindText, Content: line,
			CreatedAt: time.Date(2024, 3, 1, 9, i, 0, 0, time.UTC),
		}); err != nil {
			t.Fatal(err)
		}
	}

	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "- 小明今天迟到了，因为闹钟没响", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	digest, err := o.RequestMemoryCompaction(ctx, convID, 0)
	if err != nil {
		t.Fatalf("RequestMemoryCompaction: %v", err)
	}
	stored, err := repo.GetDigest(ctx, convID)
	if err != nil {
		t.Fatalf("GetDigest: %v", err)
	}
	if stored.Content != digest {
		t.Errorf("stored digest %q != returned %q", stored.Content, digest)
	}

	// A later compaction replaces the digest outright.
	client.GenerateFunc = func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
		for _, m := range messages {
			if strings.Contains(m.Text, "闹钟没响") && strings.Contains(m.Text, "迟到") {
				// Previous digest rides along in the prompt for merging.
				return "- 小明习惯性迟到", nil
			}
		}
		return "", errors.New("previous digest missing from prompt")
	}
	second, err := o.RequestMemoryCompaction(ctx, convID, 0)
	if err != nil {
		t.Fatalf("second compaction: %v", err)
	}
	stored, _ = repo.GetDigest(ctx, convID)
	if stored.Content != second || strings.Contains(stored.Content, digest) {
		t.Errorf("digest not replaced wholesale: %q", stored.Content)
	}
}

func TestCompactionFailureKeepsOldDigest(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	ctx := context.Background()
	if err := repo.AppendMessage(ctx, types.Message{
		ID: "m-1", ConversationID: convID, AuthorID: types.SelfID,
		AuthorName: "我", Kind: types.KindText, Content: "在吗",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetDigest(ctx, types.MemoryDigest{ConversationID: convID, Content: "- 旧记忆"}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("gateway down")
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			return "", boom
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	if _, err := o.RequestMemoryCompaction(ctx, convID, 0); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	stored, err := repo.GetDigest(ctx, convID)
	if err != nil || stored.Content != "- 旧记忆" {
		t.Fatalf("old digest clobbered after failure: %q err=%v", stored.Content, err)
	}
}

func TestConcurrentCompactionRejected(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	ctx := context.Background()
	if err := repo.AppendMessage(ctx, types.Message{
		ID: "m-1", ConversationID: convID, AuthorID: types.SelfID,
		AuthorName: "我", Kind: types.KindText, Content: "在吗",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			close(entered)
			<-proceed
			return "- 摘要", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := o.RequestMemoryCompaction(ctx, convID, 0)
		done <- err
	}()

	<-entered
	if _, err := o.RequestMemoryCompaction(ctx, convID, 0); !errors.Is(err, types.ErrBusy) {
		t.Fatalf("concurrent compaction error = %v, want ErrBusy", err)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("first compaction failed: %v", err)
	}
}

func TestReplyAndCompactionGuardsAreIndependent(t *testing.T) {
	repo := newMemRepo()
	convID := seedGroup(t, repo, "小明")
	ctx := context.Background()
	if err := repo.AppendMessage(ctx, types.Message{
		ID: "m-1", ConversationID: convID, AuthorID: types.SelfID,
		AuthorName: "我", Kind: types.KindText, Content: "在吗",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var calls atomic.Int32
	client := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
			// Only the first caller (the compaction) blocks.
			if calls.Add(1) == 1 {
				close(entered)
				<-proceed
			}
			return "- 摘要", nil
		},
	}
	o := newTestOrchestrator(repo, client, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := o.RequestMemoryCompaction(ctx, convID, 0)
		done <- err
	}()

	// A reply turn is allowed while compaction is in flight.
	<-entered
	result, err := o.RequestGroupReply(ctx, convID)
	if err != nil {
		t.Fatalf("reply during compaction: %v", err)
	}
	if !result.ParseEmpty && result.Delivered == 0 {
		t.Errorf("unexpected turn result: %+v", result)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("compaction failed: %v", err)
	}
}
