package session

import (
	"fmt"

	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/llm/tokenizer"
	"github.com/BaSui01/weatherbot/types"
)

// Context holds everything the assistant knows about one chat: the
// message history and what the agents have extracted from it so far.
// A Context is owned by a single conversation and is not safe for
// concurrent use.
type Context struct {
	messages []types.Message

	Location            *maps.Coordinates
	LocationDescription string
	WeatherCategory     *maps.WeatherType
	VisitedAgents       []string
}

// New returns an empty context.
func New() *Context {
	return &Context{}
}

// FromMessages seeds a context with an existing history.
func FromMessages(msgs []types.Message) *Context {
	return &Context{messages: types.CloneMessages(msgs)}
}

// AddMessage appends a message to the history.
func (c *Context) AddMessage(role types.Role, content string) {
	c.messages = append(c.messages, types.NewMessage(role, content))
}

// Messages returns a copy of the history.
func (c *Context) Messages() []types.Message {
	return types.CloneMessages(c.messages)
}

// Len returns the number of messages in the history.
func (c *Context) Len() int { return len(c.messages) }

// Recent returns a copy of the last n messages.
func (c *Context) Recent(n int) []types.Message {
	if n >= len(c.messages) {
		return c.Messages()
	}
	return types.CloneMessages(c.messages[len(c.messages)-n:])
}

// Transcript flattens the history as "role: content" lines.
func (c *Context) Transcript() string {
	return types.FlattenMessages(c.messages)
}

// SetLocation records a geocoded location.
func (c *Context) SetLocation(at maps.Coordinates, description string) {
	c.Location = &at
	c.LocationDescription = description
}

// SetWeatherCategory records the category the user asked about.
func (c *Context) SetWeatherCategory(wt maps.WeatherType) {
	c.WeatherCategory = &wt
}

// Visit records that an agent was consulted for the latest reply.
func (c *Context) Visit(agent string) {
	c.VisitedAgents = append(c.VisitedAgents, agent)
}

// ResetVisits clears VisitedAgents before a new reply.
func (c *Context) ResetVisits() {
	c.VisitedAgents = nil
}

// Truncate drops the oldest messages until the history fits in budget
// tokens. The most recent message is always kept. A budget <= 0 disables
// truncation. It returns the number of messages dropped.
func (c *Context) Truncate(counter tokenizer.Counter, budget int) (int, error) {
	if budget <= 0 || counter == nil || len(c.messages) <= 1 {
		return 0, nil
	}
	dropped := 0
	for len(c.messages) > 1 {
		n, err := counter.CountMessages(c.messages)
		if err != nil {
			return dropped, fmt.Errorf("count history tokens: %w", err)
		}
		if n <= budget {
			break
		}
		c.messages = c.messages[1:]
		dropped++
	}
	return dropped, nil
}
