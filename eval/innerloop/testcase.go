package innerloop

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/types"
)

// testDataDir is the conventional folder holding an agent's test files. A
// file directly inside it is its own source.
const testDataDir = "test-data"

// StringList decodes from either a JSON string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("want string or list of strings: %w", err)
	}
	*l = many
	return nil
}

// TestCase is one agent input with what it should produce.
type TestCase struct {
	ID              string                       `json:"test_case_id"`
	ExpectedOutput  any                          `json:"expected_output,omitempty"`
	CustomerProfile conversation.CustomerProfile `json:"customer_profile"`
	// Context is the harness context the case was captured with. Its
	// message_history is the agent input.
	Context        map[string]any `json:"context,omitempty"`
	CriteriaPrompt StringList     `json:"criteria_prompt,omitempty"`
	IdealAnswer    StringList     `json:"ideal_answer,omitempty"`
	Source         string         `json:"source,omitempty"`

	AgentOutput any                `json:"agent_output,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
}

// History decodes the context's message_history.
func (tc TestCase) History() ([]types.Message, error) {
	raw, ok := tc.Context["message_history"]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out []types.Message
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("test case %s: decode message_history: %w", tc.ID, err)
	}
	return out, nil
}

// Attribute returns a context attribute as a string.
func (tc TestCase) Attribute(key string) string {
	s, _ := tc.Context[key].(string)
	return s
}

// LoadTestCases reads JSON test case files. A directory is walked
// recursively for *.json files and names the source of everything under
// it; a file takes its parent folder as source, or its own name when the
// parent is the test-data folder.
func LoadTestCases(paths []string) ([]TestCase, error) {
	var out []TestCase
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("test data %s: %w", p, err)
		}
		if !info.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			source := filepath.Base(filepath.Dir(abs))
			if source == testDataDir {
				source = filepath.Base(p)
			}
			cases, err := loadFile(p, source)
			if err != nil {
				return nil, err
			}
			out = append(out, cases...)
			continue
		}

		source := filepath.Base(filepath.Clean(p))
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			cases, err := loadFile(path, source)
			if err != nil {
				return err
			}
			out = append(out, cases...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadFile(path, source string) ([]TestCase, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test cases: %w", err)
	}
	var cases []TestCase
	if err := json.Unmarshal(b, &cases); err != nil {
		return nil, fmt.Errorf("decode test cases %s: %w", path, err)
	}
	for i := range cases {
		cases[i].Source = source
	}
	return cases, nil
}

// WriteTestCases writes cases as an indented JSON array, creating parent
// directories.
func WriteTestCases(path string, cases []TestCase) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create test case dir: %w", err)
	}
	b, err := json.MarshalIndent(cases, "", "    ")
	if err != nil {
		return fmt.Errorf("encode test cases: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
