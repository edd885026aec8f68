// Package scheduler plays parsed utterances back into a conversation one at
// a time with a length-proportional delay, emulating human typing cadence.
//
// Delivery is cooperative and sequential: the delay wait is the only
// suspension point, so persisted order always equals parse order no matter
// what delays are computed. Partial runs are visible mid-flight; that is the
// design, mimicking a live chat feed. There is no rollback: a cancelled run
// keeps what already landed and never schedules the rest.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// Config bounds the simulated typing delay.
type Config struct {
	MinDelay time.Duration // clamp floor
	MaxDelay time.Duration // clamp ceiling
	PerRune  time.Duration // content length scale
}

// DefaultConfig returns the 1-5s pacing window.
func DefaultConfig() Config {
	return Config{
		MinDelay: time.Second,
		MaxDelay: 5 * time.Second,
		PerRune:  50 * time.Millisecond,
	}
}

// MessageStore is the slice of the repository the scheduler writes through.
type MessageStore interface {
	AppendMessage(ctx context.Context, m types.Message) error
	TouchConversation(ctx context.Context, id string) error
}

// Scheduler delivers utterances into the conversation store.
type Scheduler struct {
	repo  MessageStore
	clock Clock
	cfg   Config
}

// New creates a Scheduler. A nil clock means wall clock.
func New(repo MessageStore, clock Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.PerRune <= 0 {
		cfg.PerRune = 50 * time.Millisecond
	}
	return &Scheduler{repo: repo, clock: clock, cfg: cfg}
}

// Outcome summarizes one delivery run.
type Outcome struct {
	Delivered       int
	DroppedSpeakers int
}

// Deliver resolves each utterance to a group member and appends it after a
// typing delay. Unresolved speaker names are dropped per pair, counted, and
// never abort the remaining deliveries. Cancelling ctx stops the run before
// the next pending pair.
func (s *Scheduler) Deliver(ctx context.Context, conversationID string, utterances []types.Utterance, members []types.Participant) (Outcome, error) {
	var out Outcome

	byName := make(map[string]types.Participant, len(members))
	for _, m := range members {
		byName[m.Name] = m
	}

	for _, u := range utterances {
		speaker, ok := byName[u.SpeakerName]
		if !ok {
			// Exact match only. Fuzzy resolution stays off until the
			// format drift question is settled upstream.
			out.DroppedSpeakers++
			logging.SchedulerDebug("Dropping unresolved speaker: %q conversation=%s", u.SpeakerName, conversationID)
			continue
		}

		delay := s.typingDelay(u.Content)
		select {
		case <-ctx.Done():
			logging.Session("Delivery cancelled: conversation=%s delivered=%d pending=%d",
				conversationID, out.Delivered, len(utterances)-out.Delivered-out.DroppedSpeakers)
			return out, ctx.Err()
		case <-s.clock.After(delay):
		}

		msg := types.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			AuthorID:       speaker.ID,
			AuthorName:     speaker.Name,
			Kind:           types.KindText,
			Content:        u.Content,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.repo.AppendMessage(ctx, msg); err != nil {
			return out, err
		}
		if err := s.repo.TouchConversation(ctx, conversationID); err != nil {
			return out, err
		}
		out.Delivered++
	}

	if out.DroppedSpeakers > 0 {
		logging.Get(logging.CategoryScheduler).Warnf("Delivery finished with %d unresolved speakers: conversation=%s",
			out.DroppedSpeakers, conversationID)
	}
	return out, nil
}

// typingDelay scales content length into a delay, clamped to the config
// window.
func (s *Scheduler) typingDelay(content string) time.Duration {
	d := time.Duration(len([]rune(content))) * s.cfg.PerRune
	if d < s.cfg.MinDelay {
		return s.cfg.MinDelay
	}
	if d > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return d
}
