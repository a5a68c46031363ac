package innerloop

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/weatherbot/eval/convlog"
)

// Wildcard matches every conversation id or every message id.
const Wildcard = "*"

// MessageIDs selects messages of a conversation.
type MessageIDs struct {
	All bool
	IDs []int
}

// UnmarshalJSON accepts "*", an integer or a list of integers.
func (m *MessageIDs) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != Wildcard {
			return fmt.Errorf("message ids must be integers, a list of integers or %q, got %q", Wildcard, s)
		}
		*m = MessageIDs{All: true}
		return nil
	}
	var one int
	if err := json.Unmarshal(b, &one); err == nil {
		*m = MessageIDs{IDs: []int{one}}
		return nil
	}
	var many []int
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("message ids must be integers, a list of integers or %q: %s", Wildcard, b)
	}
	*m = MessageIDs{IDs: many}
	return nil
}

// Selection maps conversation ids, or Wildcard, to the messages to extract.
type Selection map[string]MessageIDs

// ParseSelection decodes a selection such as {"4d20...": 5, "*": "*"}.
// Single quotes are accepted in place of double quotes.
func ParseSelection(s string) (Selection, error) {
	var sel Selection
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &sel); err != nil {
		return nil, fmt.Errorf("parse selection: %w", err)
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("parse selection: empty")
	}
	return sel, nil
}

func (s Selection) lookup(conversationID string) (MessageIDs, bool) {
	if ids, ok := s[Wildcard]; ok {
		return ids, true
	}
	ids, ok := s[conversationID]
	return ids, ok
}

// Extract rebuilds test cases from a JSON conversation log. Each selected
// message becomes a case whose expected output is the message content and
// whose context is the harness context logged with it.
func Extract(r io.Reader, sel Selection) ([]TestCase, error) {
	entries, err := convlog.ReadJSON(r)
	if err != nil {
		return nil, err
	}
	var out []TestCase
	for _, e := range entries {
		ids, ok := sel.lookup(e.ConversationID)
		if !ok {
			continue
		}
		wanted := ids.IDs
		if ids.All {
			wanted = make([]int, 0, len(e.History))
			for _, m := range e.History {
				wanted = append(wanted, m.MessageID)
			}
		}
		for _, id := range wanted {
			for _, m := range e.History {
				if m.MessageID != id {
					continue
				}
				out = append(out, TestCase{
					ID:              fmt.Sprintf("%s-%d", e.ConversationID, id),
					ExpectedOutput:  m.Content,
					CustomerProfile: e.CustomerProfile,
					Context:         m.Context,
				})
				break
			}
		}
	}
	return out, nil
}

// ExtractDir runs Extract over every JSON log in dir. Condensed xlsx logs
// are skipped.
func ExtractDir(dir string, sel Selection) ([]TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var out []TestCase
	for _, de := range entries {
		if de.IsDir() || strings.EqualFold(filepath.Ext(de.Name()), ".xlsx") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, err
		}
		cases, err := Extract(f, sel)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", de.Name(), err)
		}
		out = append(out, cases...)
	}
	return out, nil
}
