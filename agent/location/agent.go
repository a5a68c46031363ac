package location

import (
	"context"

	"github.com/BaSui01/weatherbot/agent/session"
)

// Name identifies the location agent in visited_agents and metrics.
const Name = "location"

// Agent makes sure the session has a location before any weather lookup.
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

// Invoke returns "" once the session has a location. Until then it returns
// the assistant's request for location details.
func (a *Agent) Invoke(ctx context.Context, sess *session.Context) (string, error) {
	if err := a.extractor.Extract(ctx, sess); err != nil {
		return "", err
	}
	if sess.Location != nil {
		return "", nil
	}
	return a.assistant.Reply(ctx, sess.Messages())
}
