package harness

import (
	"context"
	"fmt"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/llm/tokenizer"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Snapshot attribute keys.
const (
	AttrVisitedAgents   = "visited_agents"
	AttrLocation        = "location"
	AttrLocationDetails = "location_details"
	AttrWeatherCategory = "weather_category"
)

// Replier produces one assistant reply. *orchestrator.Orchestrator
// satisfies it.
type Replier interface {
	Reply(ctx context.Context, userMessage string, sess *session.Context) (string, error)
}

// OrchestratorHarness puts the orchestrator under test. Every reply starts
// from a fresh session built from the conversation history, so nothing
// leaks between turns except the view returned by Snapshot.
type OrchestratorHarness struct {
	replier Replier
	counter tokenizer.Counter
	budget  int
	logger  *zap.Logger

	view conversation.HarnessSnapshot
}

// Option configures an OrchestratorHarness.
type Option func(*OrchestratorHarness)

// WithTokenBudget trims the history the orchestrator sees to budget tokens
// as counted by counter. A budget <= 0 disables trimming.
func WithTokenBudget(counter tokenizer.Counter, budget int) Option {
	return func(h *OrchestratorHarness) {
		h.counter = counter
		h.budget = budget
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *OrchestratorHarness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New wraps r.
func New(r Replier, opts ...Option) *OrchestratorHarness {
	h := &OrchestratorHarness{replier: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "orchestrator_harness"))
	return h
}

// Reply implements conversation.Harness.
func (h *OrchestratorHarness) Reply(ctx context.Context, conv *conversation.Conversation) (string, error) {
	history := conv.PlainMessages()
	userMessage := ""
	if n := len(history); n > 0 && history[n-1].Role == types.RoleUser {
		userMessage = history[n-1].Content
		history = history[:n-1]
	}

	sess := session.FromMessages(history)
	if err := h.trim(sess); err != nil {
		return "", err
	}

	reply, err := h.replier.Reply(ctx, userMessage, sess)
	if err != nil {
		return "", err
	}
	if err := h.trim(sess); err != nil {
		return "", err
	}
	h.view = viewOf(sess)
	return reply, nil
}

func (h *OrchestratorHarness) trim(sess *session.Context) error {
	dropped, err := sess.Truncate(h.counter, h.budget)
	if err != nil {
		return fmt.Errorf("trim harness history: %w", err)
	}
	if dropped > 0 {
		h.logger.Debug("history trimmed", zap.Int("dropped", dropped), zap.Int("budget", h.budget))
	}
	return nil
}

// Snapshot implements conversation.Harness.
func (h *OrchestratorHarness) Snapshot() conversation.HarnessSnapshot {
	return h.view.Clone()
}

// Restore implements conversation.Restorer.
func (h *OrchestratorHarness) Restore(snap conversation.HarnessSnapshot) {
	h.view = snap.Clone()
}

func viewOf(sess *session.Context) conversation.HarnessSnapshot {
	attrs := map[string]any{
		AttrVisitedAgents: append([]string{}, sess.VisitedAgents...),
	}
	if sess.Location != nil {
		attrs[AttrLocation] = sess.Location.Query()
		attrs[AttrLocationDetails] = sess.LocationDescription
	}
	if sess.WeatherCategory != nil {
		attrs[AttrWeatherCategory] = sess.WeatherCategory.Label()
	}
	return conversation.HarnessSnapshot{Messages: sess.Messages(), Attributes: attrs}
}
