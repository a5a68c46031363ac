package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/weatherbot/agent/orchestrator"
	"github.com/BaSui01/weatherbot/types"
	"github.com/google/uuid"
)

var (
	// ErrRoleOrder is returned when a message would repeat the previous role.
	ErrRoleOrder = errors.New("conversation: roles must alternate")
	// ErrAlreadyStarted is returned by Initialize on a started conversation.
	ErrAlreadyStarted = errors.New("conversation: already started")
	// ErrEnded is returned when mutating a conversation that has ended.
	ErrEnded = errors.New("conversation: already ended")
	// ErrNothingToRewind is returned by Rewind when no turn has completed.
	ErrNothingToRewind = errors.New("conversation: no completed turn to rewind")
)

// Greeting is the assistant message every generated conversation opens with.
const Greeting = orchestrator.Greeting

// =============================================================================
// 🔁 状态与结束原因
// =============================================================================

// State is the lifecycle state of a conversation.
type State int

const (
	NotStarted State = iota
	InProgress
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ExitReason records why generation stopped. It is set exactly once.
type ExitReason string

const (
	ExitNone        ExitReason = ""
	ExitMaxTurns    ExitReason = "max_turns"
	ExitUserToken   ExitReason = "user_token"
	ExitRepetition  ExitReason = "repetition"
	ExitTestCaseKey ExitReason = "test_case_key"
	ExitError       ExitReason = "error"
)

// =============================================================================
// 📦 数据模型
// =============================================================================

// HarnessSnapshot is the history and state the assistant harness saw when
// it produced a reply. Snapshots are values: the conversation hands out
// copies and never mutates one after attaching it.
type HarnessSnapshot struct {
	Version    int             `json:"version"`
	Messages   []types.Message `json:"message_history"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// Clone returns a deep copy of s.
func (s HarnessSnapshot) Clone() HarnessSnapshot {
	return HarnessSnapshot{
		Version:    s.Version,
		Messages:   types.CloneMessages(s.Messages),
		Attributes: cloneMap(s.Attributes),
	}
}

// Has reports whether the snapshot carries attribute key.
func (s HarnessSnapshot) Has(key string) bool {
	_, ok := s.Attributes[key]
	return ok
}

// Message is one entry of the conversation history. Assistant messages
// produced by GenerateTurn carry the harness snapshot.
type Message struct {
	Role     types.Role       `json:"role"`
	Content  string           `json:"content"`
	Snapshot *HarnessSnapshot `json:"context,omitempty"`
}

// Plain drops the snapshot.
func (m Message) Plain() types.Message {
	return types.NewMessage(m.Role, m.Content)
}

// CustomerProfile describes the emulated customer.
type CustomerProfile struct {
	Name       string         `json:"name,omitempty"`
	Prompt     string         `json:"prompt"`
	Attributes map[string]any `json:"attributes,omitempty"`
	// UserPrompt, when set, is sent verbatim as the first user message.
	UserPrompt string `json:"user_prompt,omitempty"`
}

// Clone returns a deep copy of p.
func (p CustomerProfile) Clone() CustomerProfile {
	p.Attributes = cloneMap(p.Attributes)
	return p
}

// =============================================================================
// 💬 Conversation
// =============================================================================

// Conversation is one generated dialogue between the emulated user and the
// assistant harness. It is owned by a single goroutine.
type Conversation struct {
	id              string
	scenarioPrompt  string
	customerProfile CustomerProfile

	messages       []Message
	harnessContext HarnessSnapshot
	seedContext    HarnessSnapshot

	state          State
	exitReason     ExitReason
	exitDetail     string
	completedTurns int
	initialLen     int

	startedAt time.Time
	endedAt   time.Time
}

// New creates an empty conversation with a fresh id.
func New() *Conversation {
	return &Conversation{id: NewID()}
}

// NewWithHistory creates a conversation seeded with history. Roles must
// alternate.
func NewWithHistory(history []types.Message) (*Conversation, error) {
	c := New()
	for _, m := range history {
		if err := c.Append(m.Role, m.Content); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewID returns a uuid4 hex string without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *Conversation) ID() string                       { return c.id }
func (c *Conversation) ScenarioPrompt() string           { return c.scenarioPrompt }
func (c *Conversation) CustomerProfile() CustomerProfile { return c.customerProfile.Clone() }
func (c *Conversation) State() State                     { return c.state }
func (c *Conversation) ExitReason() ExitReason           { return c.exitReason }
func (c *Conversation) ExitDetail() string               { return c.exitDetail }
func (c *Conversation) CompletedTurns() int              { return c.completedTurns }
func (c *Conversation) Len() int                         { return len(c.messages) }
func (c *Conversation) StartedAt() time.Time             { return c.startedAt }
func (c *Conversation) EndedAt() time.Time               { return c.endedAt }

// InitialLen is the history length when the conversation started: the
// seed plus the user opener. Until the conversation ends,
// Len() == InitialLen() + 2*CompletedTurns().
func (c *Conversation) InitialLen() int { return c.initialLen }

// Duration is the time between start and end, or until now while running.
func (c *Conversation) Duration() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	if c.endedAt.IsZero() {
		return time.Since(c.startedAt)
	}
	return c.endedAt.Sub(c.startedAt)
}

// Messages returns a copy of the history. Snapshots are deep copied.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m
		if m.Snapshot != nil {
			s := m.Snapshot.Clone()
			out[i].Snapshot = &s
		}
	}
	return out
}

// PlainMessages returns the history without snapshots.
func (c *Conversation) PlainMessages() []types.Message {
	out := make([]types.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Plain()
	}
	return out
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastUserMessage returns the content of the most recent user message.
func (c *Conversation) LastUserMessage() (string, bool) {
	msgs := c.lastByRole(types.RoleUser, 1)
	if len(msgs) == 0 {
		return "", false
	}
	return msgs[0].Content, true
}

// lastByRole returns up to n most recent messages with role, newest first.
func (c *Conversation) lastByRole(role types.Role, n int) []Message {
	out := make([]Message, 0, n)
	for i := len(c.messages) - 1; i >= 0 && len(out) < n; i-- {
		if c.messages[i].Role == role {
			out = append(out, c.messages[i])
		}
	}
	return out
}

// HarnessContext returns a copy of the latest reconstructed harness view.
func (c *Conversation) HarnessContext() HarnessSnapshot {
	return c.harnessContext.Clone()
}

// Append adds a plain message. The role must differ from the previous one.
func (c *Conversation) Append(role types.Role, content string) error {
	return c.append(Message{Role: role, Content: content})
}

func (c *Conversation) append(m Message) error {
	if c.state == Ended {
		return ErrEnded
	}
	if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
		return fmt.Errorf("conversation: unsupported role %q", m.Role)
	}
	if last, ok := c.Last(); ok && last.Role == m.Role {
		return fmt.Errorf("%w: %s after %s", ErrRoleOrder, m.Role, last.Role)
	}
	c.messages = append(c.messages, m)
	return nil
}

// appendAssistant attaches snap to a new assistant message and makes it
// the current harness context.
func (c *Conversation) appendAssistant(content string, snap HarnessSnapshot) error {
	stored := snap.Clone()
	if err := c.append(Message{Role: types.RoleAssistant, Content: content, Snapshot: &stored}); err != nil {
		return err
	}
	c.harnessContext = snap.Clone()
	return nil
}

// ReplaceLastUserMessage overwrites the content of the trailing user message.
func (c *Conversation) ReplaceLastUserMessage(content string) error {
	last, ok := c.Last()
	if !ok || last.Role != types.RoleUser {
		return fmt.Errorf("conversation: last message is not from the user")
	}
	c.messages[len(c.messages)-1].Content = content
	return nil
}

// Rewind drops the last completed turn and restores the harness context
// that preceded it. An ended conversation is reopened.
func (c *Conversation) Rewind() error {
	if c.completedTurns == 0 || len(c.messages) < 2 {
		return ErrNothingToRewind
	}
	c.messages = c.messages[:len(c.messages)-2]
	c.completedTurns--

	c.harnessContext = c.seedContext.Clone()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if s := c.messages[i].Snapshot; s != nil {
			c.harnessContext = s.Clone()
			break
		}
	}
	if c.state == Ended {
		c.state = InProgress
		c.exitReason = ExitNone
		c.exitDetail = ""
		c.endedAt = time.Time{}
	}
	return nil
}

// End moves the conversation to Ended with reason. It returns false and
// changes nothing if the conversation already ended.
func (c *Conversation) End(reason ExitReason, detail string) bool {
	if c.state == Ended {
		return false
	}
	c.state = Ended
	c.exitReason = reason
	c.exitDetail = detail
	c.endedAt = time.Now()
	return true
}

// start stamps the immutable fields and moves to InProgress.
func (c *Conversation) start(scenarioPrompt string, profile CustomerProfile, seed HarnessSnapshot) error {
	if c.state != NotStarted {
		return ErrAlreadyStarted
	}
	if c.id == "" {
		c.id = NewID()
	}
	c.scenarioPrompt = scenarioPrompt
	c.customerProfile = profile.Clone()
	c.seedContext = seed.Clone()
	c.harnessContext = seed.Clone()
	c.state = InProgress
	c.startedAt = time.Now()
	return nil
}

// =============================================================================
// 🔧 深拷贝
// =============================================================================

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Transcript renders the history as "ROLE: content" lines, the format the
// grader prompts expect.
func (c *Conversation) Transcript() string {
	var b strings.Builder
	for _, m := range c.messages {
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
