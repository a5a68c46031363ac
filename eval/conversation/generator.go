package conversation

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/internal/telemetry"
	"github.com/BaSui01/weatherbot/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultMaxTurns bounds a generated conversation.
const DefaultMaxTurns = 8

const emptyReplyDetail = "assistant harness returned an empty reply"

// Generator drives conversations between one harness and one user. A
// Generator is not safe for concurrent use; build one per conversation.
type Generator struct {
	harness  Harness
	user     User
	maxTurns int
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxTurns sets the turn limit. Values below 1 are ignored.
func WithMaxTurns(n int) Option {
	return func(g *Generator) {
		if n >= 1 {
			g.maxTurns = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records turn outcomes and exit reasons on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Generator) { g.metrics = c }
}

// NewGenerator creates a generator for h and u.
func NewGenerator(h Harness, u User, opts ...Option) *Generator {
	g := &Generator{
		harness:  h,
		user:     u,
		maxTurns: DefaultMaxTurns,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "conversation_generator"))
	return g
}

// MaxTurns returns the configured limit.
func (g *Generator) MaxTurns() int { return g.maxTurns }

// Initialize stamps the scenario and profile on conv, seeds its harness
// context and, when the assistant spoke last, asks the user for an opener.
func (g *Generator) Initialize(ctx context.Context, conv *Conversation, scenarioPrompt string, profile CustomerProfile) error {
	seed := g.harness.Snapshot()
	seed.Version = 0
	if err := conv.start(scenarioPrompt, profile, seed); err != nil {
		return err
	}

	if last, ok := conv.Last(); ok && last.Role == types.RoleAssistant {
		opener, err := g.user.Reply(ctx, conv)
		if err != nil {
			return fmt.Errorf("user opener: %w", err)
		}
		if err := conv.Append(types.RoleUser, opener); err != nil {
			return err
		}
	}
	conv.initialLen = conv.Len()

	g.logger.Debug("conversation initialized",
		zap.String("conversation_id", conv.ID()),
		zap.Int("history", conv.Len()))
	return nil
}

// Step runs one turn and records its outcome. Panics are not recovered.
func (g *Generator) Step(ctx context.Context, conv *Conversation) (bool, error) {
	ok, err := GenerateTurn(ctx, g.harness, g.user, conv)
	switch {
	case err != nil:
		g.metrics.RecordTurn("error")
	case !ok:
		g.metrics.RecordTurn("empty")
	default:
		g.metrics.RecordTurn("completed")
	}
	return ok, err
}

// Rewind drops the last turn of conv and, when the harness supports it,
// restores the harness to the preceding snapshot.
func (g *Generator) Rewind(conv *Conversation) error {
	if err := conv.Rewind(); err != nil {
		return err
	}
	if r, ok := g.harness.(Restorer); ok {
		r.Restore(conv.HarnessContext())
	}
	return nil
}

// Run generates turns until a predicate fires, a turn fails or the limit
// is reached. It never returns an error: failures end the conversation
// with ExitError and a diagnostic detail.
func (g *Generator) Run(ctx context.Context, conv *Conversation, testCaseKey string) ExitReason {
	ctx, end := telemetry.StartSpan(ctx, "conversation.run",
		attribute.String("conversation.id", conv.ID()),
		attribute.Int("conversation.max_turns", g.maxTurns))
	ctx = types.WithConversationID(ctx, conv.ID())
	log := g.logger.With(zap.String("conversation_id", conv.ID()))

	switch conv.State() {
	case Ended:
		end(nil)
		return conv.ExitReason()
	case NotStarted:
		g.finish(conv, ExitError, "conversation not initialized", log)
		end(fmt.Errorf("conversation not initialized"))
		return ExitError
	}

	for turn := 1; turn < g.maxTurns; turn++ {
		ok, err := g.safeStep(ctx, conv)
		if err != nil {
			log.Warn("turn failed", zap.Int("turn", turn), zap.Error(err))
			g.finish(conv, ExitError, err.Error(), log)
			end(err)
			return ExitError
		}
		if !ok {
			log.Warn("turn produced no reply", zap.Int("turn", turn))
			g.finish(conv, ExitError, emptyReplyDetail, log)
			end(nil)
			return ExitError
		}

		if in, hit := TestCaseInterrupted(conv, testCaseKey); hit {
			g.finish(conv, in.Reason, in.Detail, log)
			end(nil)
			return in.Reason
		}
		if in, hit := ConversationInterrupted(conv); hit {
			g.finish(conv, in.Reason, in.Detail, log)
			end(nil)
			return in.Reason
		}

		if turn == g.maxTurns-1 {
			log.Warn("conversation is close to the turn limit",
				zap.Int("turn", turn), zap.Int("max_turns", g.maxTurns))
		}
	}

	g.finish(conv, ExitMaxTurns, fmt.Sprintf("reached %d turns", g.maxTurns), log)
	end(nil)
	return ExitMaxTurns
}

func (g *Generator) safeStep(ctx context.Context, conv *Conversation) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.RecordTurn("error")
			ok, err = false, fmt.Errorf("panic during turn: %v\n%s", r, debug.Stack())
		}
	}()
	return g.Step(ctx, conv)
}

func (g *Generator) finish(conv *Conversation, reason ExitReason, detail string, log *zap.Logger) {
	if !conv.End(reason, detail) {
		return
	}
	g.metrics.RecordConversationEnd(string(reason), conv.Duration())
	log.Info("conversation ended",
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
		zap.Int("turns", conv.CompletedTurns()))
}

// GenerateConversation opens with the standard greeting, adds the profile's
// fixed first message when it has one and runs to completion.
func (g *Generator) GenerateConversation(ctx context.Context, profile CustomerProfile, scenarioPrompt string) *Conversation {
	conv := New()
	_ = conv.Append(types.RoleAssistant, Greeting)
	if profile.UserPrompt != "" {
		_ = conv.Append(types.RoleUser, profile.UserPrompt)
	}
	return g.initializeAndRun(ctx, conv, scenarioPrompt, profile, "")
}

// GenerateTestCase continues seed, or the greeting when seed is empty, and
// stops early once key shows up in the harness context.
func (g *Generator) GenerateTestCase(ctx context.Context, seed []types.Message, scenarioPrompt string, profile CustomerProfile, key string) *Conversation {
	if len(seed) == 0 {
		seed = []types.Message{types.NewAssistantMessage(Greeting)}
	}
	conv, err := NewWithHistory(seed)
	if err != nil {
		conv = New()
		conv.End(ExitError, fmt.Sprintf("invalid seed history: %v", err))
		return conv
	}
	return g.initializeAndRun(ctx, conv, scenarioPrompt, profile, key)
}

func (g *Generator) initializeAndRun(ctx context.Context, conv *Conversation, scenarioPrompt string, profile CustomerProfile, key string) *Conversation {
	if err := g.Initialize(ctx, conv, scenarioPrompt, profile); err != nil {
		g.finish(conv, ExitError, err.Error(), g.logger.With(zap.String("conversation_id", conv.ID())))
		return conv
	}
	g.Run(ctx, conv, key)
	return conv
}
