// Package timeline keeps the client-side view of the open conversation: an ordered list
// of messages without duplicate ids, built from a history load plus a live stream.
package timeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"go.uber.org/zap"
)

// State is the lifecycle of the open conversation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "idle"
	}
}

const (
	opSelect = "timeline.select"
	opSend   = "timeline.send"
)

var (
	errMissingBackend      = errors.New("timeline: backend required")
	errNoConversation      = errors.New("no conversation selected")
	errEmptyMessage        = errors.New("message text is empty")
	errMissingConversation = errors.New("conversation id is required")
)

// Subscription is a cancellable stream of inserted messages for one conversation.
type Subscription interface {
	Events() <-chan messaging.Message
	Close() error
}

// Backend loads, streams and stores messages.
type Backend interface {
	LoadHistory(ctx context.Context, conversationID string) ([]messaging.Message, error)
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
	SendMessage(ctx context.Context, conversationID, text string) (messaging.Message, error)
}

// Config wires a Timeline.
type Config struct {
	Backend Backend
	Logger  *zap.Logger
	// OnMessage runs for every message that becomes visible, in display order. It is
	// called with the timeline locked and must not call back into the Timeline.
	OnMessage func(messaging.Message)
}

// Timeline is safe for concurrent use.
type Timeline struct {
	backend   Backend
	logger    *zap.Logger
	onMessage func(messaging.Message)

	mu           sync.Mutex
	state        State
	selected     string
	generation   uint64
	messages     []messaging.Message
	seen         map[string]struct{}
	pending      []messaging.Message
	subscription Subscription
	cancel       context.CancelFunc
	lastErr      error
	summaries    []messaging.ConversationSummary
}

// New constructs an idle Timeline.
func New(cfg Config) (*Timeline, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timeline{
		backend:   cfg.Backend,
		logger:    logger,
		onMessage: cfg.OnMessage,
		seen:      make(map[string]struct{}),
	}, nil
}

// Select switches to conversationID: the previous subscription is torn down, the live
// stream is opened, and the history is loaded oldest-first. Live events that arrive while
// the history is loading are merged once it resolves. If another Select supersedes this
// one before the history arrives, the stale result is discarded.
func (t *Timeline) Select(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return apperrors.InvalidRequest(opSelect, "missing_conversation", errMissingConversation)
	}

	t.mu.Lock()
	t.teardownLocked()
	t.generation++
	generation := t.generation
	t.state = StateLoading
	t.selected = conversationID
	t.resetViewLocked()
	t.lastErr = nil
	streamCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	subscription, err := t.backend.Subscribe(streamCtx, conversationID)
	if err != nil {
		cancel()
		return t.fail(generation, apperrors.Upstream(opSelect, "subscribe_failed", err))
	}
	if !t.attach(generation, subscription) {
		cancel()
		_ = subscription.Close()
		return nil
	}
	go t.pump(generation, subscription)

	history, err := t.backend.LoadHistory(ctx, conversationID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUpstreamFailure {
			err = apperrors.Upstream(opSelect, "history_failed", err)
		}
		return t.fail(generation, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		t.logger.Debug("discarding stale history", zap.String("conversation_id", conversationID))
		return nil
	}
	for _, message := range history {
		t.insertLocked(message)
	}
	for _, message := range t.pending {
		t.insertLocked(message)
	}
	t.pending = nil
	t.state = StateLive
	return nil
}

// Receive merges a live insert. Messages of other conversations only refresh their summary.
func (t *Timeline) Receive(message messaging.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acceptLocked(message)
}

// Send stores trimmed text in the selected conversation and shows the stored row without
// waiting for the live echo. It is rejected while idle, including after a failed selection.
func (t *Timeline) Send(ctx context.Context, text string) (messaging.Message, error) {
	content := strings.TrimSpace(text)
	t.mu.Lock()
	conversationID := t.selected
	state := t.state
	t.mu.Unlock()
	if conversationID == "" || state == StateIdle {
		return messaging.Message{}, apperrors.InvalidRequest(opSend, "no_conversation", errNoConversation)
	}
	if content == "" {
		return messaging.Message{}, apperrors.InvalidRequest(opSend, "empty_message", errEmptyMessage)
	}

	message, err := t.backend.SendMessage(ctx, conversationID, content)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUpstreamFailure {
			return messaging.Message{}, apperrors.Upstream(opSend, "insert_failed", err)
		}
		return messaging.Message{}, err
	}
	t.Receive(message)
	return message, nil
}

// Close tears down the subscription and returns to idle.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	t.generation++
	t.state = StateIdle
	t.selected = ""
	t.resetViewLocked()
}

// Messages returns a copy of the visible list.
func (t *Timeline) Messages() []messaging.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]messaging.Message(nil), t.messages...)
}

// State reports the lifecycle state.
func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Selected reports the open conversation id, or "".
func (t *Timeline) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// Err reports the failure of the latest selection, if any.
func (t *Timeline) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// SetConversations replaces the conversation list whose summaries track new messages.
func (t *Timeline) SetConversations(summaries []messaging.ConversationSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summaries = append([]messaging.ConversationSummary(nil), summaries...)
}

// Conversations returns a copy of the conversation list.
func (t *Timeline) Conversations() []messaging.ConversationSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]messaging.ConversationSummary(nil), t.summaries...)
}

func (t *Timeline) pump(generation uint64, subscription Subscription) {
	for message := range subscription.Events() {
		t.mu.Lock()
		if generation != t.generation {
			t.mu.Unlock()
			return
		}
		t.acceptLocked(message)
		t.mu.Unlock()
	}
}

func (t *Timeline) attach(generation uint64, subscription Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return false
	}
	t.subscription = subscription
	return true
}

func (t *Timeline) fail(generation uint64, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return nil
	}
	t.teardownLocked()
	t.state = StateIdle
	t.resetViewLocked()
	t.lastErr = err
	t.logger.Warn("conversation selection failed",
		zap.String("conversation_id", t.selected),
		zap.Error(err))
	return err
}

func (t *Timeline) acceptLocked(message messaging.Message) {
	t.touchSummaryLocked(message)
	if message.ConversationID != t.selected {
		return
	}
	switch t.state {
	case StateLoading:
		t.pending = append(t.pending, message)
	case StateLive:
		t.insertLocked(message)
	}
}

// insertLocked adds message unless its id is already visible. Messages at or after the
// tail are appended; an earlier timestamp is placed after the last entry not newer than it.
func (t *Timeline) insertLocked(message messaging.Message) {
	if _, ok := t.seen[message.ID]; ok {
		return
	}
	t.seen[message.ID] = struct{}{}
	count := len(t.messages)
	if count == 0 || !message.CreatedAt.Before(t.messages[count-1].CreatedAt) {
		t.messages = append(t.messages, message)
	} else {
		position := sort.Search(count, func(index int) bool {
			return t.messages[index].CreatedAt.After(message.CreatedAt)
		})
		t.messages = append(t.messages, messaging.Message{})
		copy(t.messages[position+1:], t.messages[position:])
		t.messages[position] = message
	}
	if t.onMessage != nil {
		t.onMessage(message)
	}
}

func (t *Timeline) touchSummaryLocked(message messaging.Message) {
	for index := range t.summaries {
		if t.summaries[index].ID != message.ConversationID {
			continue
		}
		current := t.summaries[index].LastMessage
		if current == nil || !message.CreatedAt.Before(current.CreatedAt) {
			t.summaries[index].LastMessage = messaging.LastMessageOf(message)
		}
		return
	}
}

func (t *Timeline) resetViewLocked() {
	t.messages = nil
	t.pending = nil
	t.seen = make(map[string]struct{})
}

func (t *Timeline) teardownLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.subscription != nil {
		if err := t.subscription.Close(); err != nil {
			t.logger.Debug("subscription close failed", zap.Error(err))
		}
		t.subscription = nil
	}
}
