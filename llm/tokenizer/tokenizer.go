package tokenizer

import "github.com/BaSui01/weatherbot/types"

// Counter counts prompt tokens. The harness uses it to trim assistant
// history to a budget before each turn.
type Counter interface {
	// CountText returns the token count of a bare string.
	CountText(text string) (int, error)

	// CountMessages returns the total for a chat message list, including
	// per-message framing overhead.
	CountMessages(messages []types.Message) (int, error)

	// Name identifies the counter in logs.
	Name() string
}

// 每条消息的固定开销: <|start|>role\n content<|end|>\n
const (
	perMessageOverhead = 4
	replyPrimer        = 3
)

// Estimator approximates token counts from rune counts. It is used when
// no tiktoken encoding can be loaded (offline runs, unknown models).
type Estimator struct {
	CharsPerToken float64
}

// NewEstimator returns an estimator with the usual four-characters-per-token ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4}
}

func (e *Estimator) CountText(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	n := int(float64(len([]rune(text)))/ratio + 0.999)
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (e *Estimator) CountMessages(messages []types.Message) (int, error) {
	total := replyPrimer
	for _, m := range messages {
		c, _ := e.CountText(m.Content)
		total += perMessageOverhead + c + 1
	}
	return total, nil
}

func (e *Estimator) Name() string { return "estimator" }
