package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/internal/telemetry"
	"github.com/BaSui01/weatherbot/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Greeting opens every chat, in the REPL, the HTTP API and generated conversations.
const Greeting = "Hello! How can I help you?"

// Agent is one step of the reply chain. An empty reply hands the turn to
// the next agent.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, sess *session.Context) (string, error)
}

// Orchestrator drives one assistant reply: the location agent runs first
// and the weather agent only answers once the location is known.
type Orchestrator struct {
	agents  []Agent
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records agent invocations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator that consults agents in order.
func New(agents []Agent, opts ...Option) *Orchestrator {
	o := &Orchestrator{agents: agents, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// Reply appends userMessage (when non-empty) to sess, runs the agent chain
// and appends the resulting assistant reply.
func (o *Orchestrator) Reply(ctx context.Context, userMessage string, sess *session.Context) (reply string, err error) {
	ctx, end := telemetry.StartSpan(ctx, "orchestrator.reply",
		attribute.Int("history.length", sess.Len()))
	defer func() { end(err) }()

	if len(o.agents) == 0 {
		return "", fmt.Errorf("orchestrator: no agents configured")
	}
	if userMessage != "" {
		sess.AddMessage(types.RoleUser, userMessage)
	}
	sess.ResetVisits()

	for i, agent := range o.agents {
		reply, err = o.invoke(ctx, agent, sess)
		if err != nil {
			return "", err
		}
		if reply != "" || i == len(o.agents)-1 {
			break
		}
	}

	sess.AddMessage(types.RoleAssistant, reply)
	o.logger.Debug("reply produced",
		zap.Strings("visited_agents", sess.VisitedAgents),
		zap.Int("history", sess.Len()))
	return reply, nil
}

func (o *Orchestrator) invoke(ctx context.Context, agent Agent, sess *session.Context) (string, error) {
	ctx, end := telemetry.StartSpan(ctx, "agent."+agent.Name())
	start := time.Now()
	sess.Visit(agent.Name())

	reply, err := agent.Invoke(ctx, sess)
	end(err)

	status := "success"
	if err != nil {
		status = "error"
		o.logger.Warn("agent failed", zap.String("agent", agent.Name()), zap.Error(err))
	}
	o.metrics.RecordAgentInvocation(agent.Name(), status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", agent.Name(), err)
	}
	return reply, nil
}
