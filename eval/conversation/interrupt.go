package conversation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/weatherbot/types"
)

// DoneToken ends the conversation when the emulated user says it.
const DoneToken = "@done@"

// Interruption is a predicate verdict.
type Interruption struct {
	Reason ExitReason
	Detail string
}

// TestCaseInterrupted reports whether key appears in the harness context
// attributes. An empty key never fires.
func TestCaseInterrupted(conv *Conversation, key string) (Interruption, bool) {
	if key == "" || !conv.harnessContext.Has(key) {
		return Interruption{}, false
	}
	return Interruption{
		Reason: ExitTestCaseKey,
		Detail: fmt.Sprintf("end of test case key %s found in harness context", key),
	}, true
}

// ConversationInterrupted checks the sentinel token first, then the
// repetition guard.
func ConversationInterrupted(conv *Conversation) (Interruption, bool) {
	if msg, ok := conv.LastUserMessage(); ok && strings.Contains(strings.ToLower(msg), DoneToken) {
		return Interruption{Reason: ExitUserToken, Detail: "user ending conversation keyword found"}, true
	}
	return repeating(conv)
}

func repeating(conv *Conversation) (Interruption, bool) {
	if conv.Len() < 4 {
		return Interruption{}, false
	}
	for _, role := range []types.Role{types.RoleAssistant, types.RoleUser} {
		pair := conv.lastByRole(role, 2)
		if len(pair) < 2 {
			continue
		}
		if strings.EqualFold(pair[0].Content, pair[1].Content) {
			return Interruption{
				Reason: ExitRepetition,
				Detail: fmt.Sprintf("repeating response (%s)", role),
			}, true
		}
	}
	return Interruption{}, false
}
