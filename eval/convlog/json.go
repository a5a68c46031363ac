package convlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/types"
)

// Separator precedes every conversation in a JSON log file.
const Separator = "~~~NEW_CONVERSATION~~~"

// Entry is one logged conversation.
type Entry struct {
	ConversationID  string                       `json:"conversation_id"`
	History         []LoggedMessage              `json:"conversation_history"`
	CustomerProfile conversation.CustomerProfile `json:"customer_profile"`
	ScenarioPrompt  string                       `json:"scenario_prompt"`
	EndReason       string                       `json:"convo_end_reason"`
	TestResult      map[string]any               `json:"test_result,omitempty"`
}

// LoggedMessage is a message with its position and, for assistant
// messages, the harness context it was produced with. The context's
// message_history holds the messages up to but not including this one.
type LoggedMessage struct {
	MessageID int            `json:"messageId"`
	Role      types.Role     `json:"role"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
}

// ContextHistory decodes the context's message_history.
func (m LoggedMessage) ContextHistory() ([]types.Message, error) {
	raw, ok := m.Context["message_history"]
	if !ok {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out []types.Message
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode message_history: %w", err)
	}
	return out, nil
}

// NewEntry builds the log document for conv.
func NewEntry(conv *conversation.Conversation, endReason string, testResult map[string]any) Entry {
	msgs := conv.Messages()
	e := Entry{
		ConversationID:  conv.ID(),
		History:         make([]LoggedMessage, 0, len(msgs)),
		CustomerProfile: conv.CustomerProfile(),
		ScenarioPrompt:  conv.ScenarioPrompt(),
		EndReason:       endReason,
	}
	if len(testResult) > 0 {
		e.TestResult = testResult
	}
	for i, m := range msgs {
		lm := LoggedMessage{MessageID: i + 1, Role: m.Role, Content: m.Content}
		if m.Snapshot != nil {
			lm.Context = contextOf(*m.Snapshot)
		}
		e.History = append(e.History, lm)
	}
	return e
}

func contextOf(snap conversation.HarnessSnapshot) map[string]any {
	ctx := make(map[string]any, len(snap.Attributes)+2)
	for k, v := range snap.Attributes {
		ctx[k] = v
	}
	history := snap.Messages
	if n := len(history); n > 0 {
		history = history[:n-1]
	}
	ctx["message_history"] = types.CloneMessages(history)
	ctx["version"] = snap.Version
	return ctx
}

// WriteJSON appends the separator line and an indented JSON document for
// conv to w.
func WriteJSON(w io.Writer, conv *conversation.Conversation, endReason string, testResult map[string]any) error {
	b, err := json.MarshalIndent(NewEntry(conv, endReason, testResult), "", "    ")
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID(), err)
	}
	var buf bytes.Buffer
	buf.WriteString("\n" + Separator + "\n")
	buf.Write(b)
	_, err = w.Write(buf.Bytes())
	return err
}

// AppendJSON appends conv to the JSON log at path.
func AppendJSON(path string, conv *conversation.Conversation, endReason string, testResult map[string]any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	if err := WriteJSON(f, conv, endReason, testResult); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON splits a JSON log back into entries. Chunks that are not a JSON
// object are skipped.
func ReadJSON(r io.Reader) ([]Entry, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	var out []Entry
	for _, chunk := range strings.Split(string(b), Separator) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(chunk), &e); err != nil {
			continue
		}
		if e.ConversationID == "" && len(e.History) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadFile reads the JSON log at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	return ReadJSON(f)
}
