package weather

import (
	"context"

	"github.com/BaSui01/weatherbot/agent/session"
)

// Name identifies the weather agent in visited_agents and metrics.
const Name = "weather"

// Agent classifies the question and answers it.
type Agent struct {
	extractor *Extractor
	assistant *Assistant
}

// NewAgent wires an extractor and an assistant.
func NewAgent(extractor *Extractor, assistant *Assistant) *Agent {
	return &Agent{extractor: extractor, assistant: assistant}
}

// Name implements the orchestrator's agent contract.
func (a *Agent) Name() string { return Name }

// Invoke updates the category and returns the assistant's answer.
func (a *Agent) Invoke(ctx context.Context, sess *session.Context) (string, error) {
	if err := a.extractor.Extract(ctx, sess); err != nil {
		return "", err
	}
	return a.assistant.Reply(ctx, sess)
}
