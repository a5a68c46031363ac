package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Grader asks an LLM judge to grade a conversation against criteria.
type Grader struct {
	provider llm.Provider
	model    string
	template string
	logger   *zap.Logger
}

// New creates a grader that renders template for every call.
func New(provider llm.Provider, model, template string, logger *zap.Logger) *Grader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grader{
		provider: provider,
		model:    model,
		template: template,
		logger:   logger.With(zap.String("component", "grader")),
	}
}

// Template returns the prompt template.
func (g *Grader) Template() string { return g.template }

// Prompt renders the template. completion is only substituted when non-empty.
func (g *Grader) Prompt(conversation, criteria, completion string) string {
	prompt := strings.ReplaceAll(g.template, "{criteria}", criteria)
	prompt = strings.ReplaceAll(prompt, "{conversation}", conversation)
	if completion != "" {
		prompt = strings.ReplaceAll(prompt, "{completion}", completion)
	}
	return prompt
}

// Evaluate returns the judge's raw output. An empty string means the judge
// produced nothing.
func (g *Grader) Evaluate(ctx context.Context, conversation, criteria, completion string) (string, error) {
	msgs := []types.Message{types.NewSystemMessage(g.Prompt(conversation, criteria, completion))}
	out, err := llm.CompleteText(ctx, g.provider, g.model, msgs, 0)
	if err != nil {
		return "", fmt.Errorf("grade: %w", err)
	}
	return out, nil
}

// Validate decodes the judge's output into a JSON object. Markdown fences
// are stripped and, failing a direct parse, the outermost braces are tried.
// Unparseable output yields a zero score with an explanation.
func (g *Grader) Validate(raw string) map[string]any {
	out, err := parseObject(raw)
	if err != nil {
		g.logger.Warn("failed to parse grader output", zap.String("raw", raw), zap.Error(err))
		return map[string]any{
			"score":       0,
			"explanation": fmt.Sprintf("Failed to parse response %s as json", raw),
			"answer":      "Failed to parse response as json",
		}
	}
	return out
}

func parseObject(raw string) (map[string]any, error) {
	s := raw
	if strings.Contains(s, "```json") {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
	}
	var out map[string]any
	err := json.Unmarshal([]byte(s), &out)
	if err == nil && out != nil {
		return out, nil
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		if err2 := json.Unmarshal([]byte(s[start:end+1]), &out); err2 == nil && out != nil {
			return out, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("not a JSON object")
	}
	return nil, err
}

// Assess asks whether scenario played out in transcript. The grader's
// template should be ScenarioTemplate.
func (g *Grader) Assess(ctx context.Context, transcript, scenario string) (map[string]any, error) {
	raw, err := g.Evaluate(ctx, transcript, scenario, "")
	if err != nil {
		return nil, err
	}
	return g.Validate(raw), nil
}

// =============================================================================
// 📝 类型化结果
// =============================================================================

// Grade is one graded criterion.
type Grade struct {
	Key            string `json:"key,omitempty"`
	CriteriaPrompt string `json:"criteria_prompt"`
	Explanation    string `json:"explanation"`
	Answer         string `json:"answer"`
}

// ParseGrade reads a single-criterion result.
func ParseGrade(m map[string]any) Grade {
	return Grade{
		CriteriaPrompt: str(m["criteria_prompt"]),
		Explanation:    str(m["explanation"]),
		Answer:         str(m["answer"]),
	}
}

// ParseGrades reads a multi-criteria result ordered by numeric key. Entries
// that are not objects are skipped.
func ParseGrades(m map[string]any) []Grade {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := v.(map[string]any); ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	grades := make([]Grade, 0, len(keys))
	for _, k := range keys {
		g := ParseGrade(m[k].(map[string]any))
		g.Key = k
		grades = append(grades, g)
	}
	return grades
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
