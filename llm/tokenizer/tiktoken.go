package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/weatherbot/types"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// modelEncodings 将模型名前缀映射到 tiktoken 编码
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-35", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

// EncodingForModel returns the tiktoken encoding for a model or Azure
// deployment name, defaulting to cl100k_base.
func EncodingForModel(model string) string {
	m := strings.ToLower(model)
	for _, e := range modelEncodings {
		if strings.HasPrefix(m, e.prefix) {
			return e.encoding
		}
	}
	return "cl100k_base"
}

// Tiktoken counts tokens with the model's BPE encoding. The encoding is
// loaded on first use; if loading fails, counts fall back to an Estimator.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *Estimator
	logger   *zap.Logger
}

// NewTiktoken creates a counter for model.
func NewTiktoken(model string, logger *zap.Logger) *Tiktoken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiktoken{
		encoding: EncodingForModel(model),
		fallback: NewEstimator(),
		logger:   logger,
	}
}

func (t *Tiktoken) load() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("tiktoken encoding unavailable, using estimator",
				zap.String("encoding", t.encoding), zap.Error(err))
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *Tiktoken) CountText(text string) (int, error) {
	enc := t.load()
	if enc == nil {
		return t.fallback.CountText(text)
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) CountMessages(messages []types.Message) (int, error) {
	enc := t.load()
	if enc == nil {
		return t.fallback.CountMessages(messages)
	}
	total := replyPrimer
	for _, m := range messages {
		total += perMessageOverhead
		total += len(enc.Encode(m.Content, nil, nil))
		total += len(enc.Encode(string(m.Role), nil, nil))
	}
	return total, nil
}

func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
