package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSV column names.
const (
	ColScenarioID       = "scenario_id"
	ColScenarioDesc     = "scenario_desc"
	ColCategory         = "category"
	ColCriteriaID       = "criteria_id"
	ColCriteriaName     = "criteria_name"
	ColCriteriaPrompt   = "criteria_prompt"
	ColIdealAnswer      = "ideal_answer"
	ColNumConversations = "num_convo_to_generate"
	ColProfileOverrides = "profile_overrides"
	ColUserPrompt       = "user_prompt"
)

// Row is one scenario/criterion pair.
type Row struct {
	ScenarioID       int    `json:"scenario_id"`
	ScenarioDesc     string `json:"scenario_desc"`
	Category         string `json:"category,omitempty"`
	CriteriaID       string `json:"criteria_id"`
	CriteriaName     string `json:"criteria_name"`
	CriteriaPrompt   string `json:"criteria_prompt"`
	IdealAnswer      string `json:"ideal_answer"`
	NumConversations int    `json:"num_convo_to_generate"`
	ProfileOverrides string `json:"profile_overrides"`
	UserPrompt       string `json:"user_prompt"`
}

// LoadCSV reads rows from a CSV with a header line. Columns may appear in
// any order and missing ones read as zero values; criteria_prompt is
// required. Blank counts read as 0.
func LoadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("scenario csv: missing header")
		}
		return nil, fmt.Errorf("scenario csv: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := idx[ColCriteriaPrompt]; !ok {
		return nil, fmt.Errorf("scenario csv: missing column %q", ColCriteriaPrompt)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scenario csv: %w", err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		row := Row{
			ScenarioDesc:     get(ColScenarioDesc),
			Category:         get(ColCategory),
			CriteriaID:       get(ColCriteriaID),
			CriteriaName:     get(ColCriteriaName),
			CriteriaPrompt:   get(ColCriteriaPrompt),
			IdealAnswer:      get(ColIdealAnswer),
			ProfileOverrides: get(ColProfileOverrides),
			UserPrompt:       get(ColUserPrompt),
		}
		if row.ScenarioID, err = intField(get(ColScenarioID)); err != nil {
			return nil, fmt.Errorf("scenario csv line %d: %s: %w", line, ColScenarioID, err)
		}
		if row.NumConversations, err = intField(get(ColNumConversations)); err != nil {
			return nil, fmt.Errorf("scenario csv line %d: %s: %w", line, ColNumConversations, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// intField parses integers, accepting the "3.0" form spreadsheets write.
func intField(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Group is the set of rows that share one generated conversation.
type Group struct {
	ScenarioDesc     string
	ProfileOverrides string
	UserPrompt       string
	Rows             []Row
}

// ScenarioID returns the id of the first row.
func (g Group) ScenarioID() int {
	if len(g.Rows) == 0 {
		return 0
	}
	return g.Rows[0].ScenarioID
}

// Conversations is the number of conversations to generate, falling back
// to def when the sheet leaves it blank or non-positive.
func (g Group) Conversations(def int) int {
	if len(g.Rows) > 0 && g.Rows[0].NumConversations > 0 {
		return g.Rows[0].NumConversations
	}
	return def
}

// GroupRows groups rows by scenario description, profile overrides and
// user prompt, in first-seen order.
func GroupRows(rows []Row) []Group {
	type key struct{ desc, overrides, prompt string }
	pos := make(map[key]int)
	var groups []Group
	for _, r := range rows {
		k := key{r.ScenarioDesc, r.ProfileOverrides, r.UserPrompt}
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, Group{
				ScenarioDesc:     r.ScenarioDesc,
				ProfileOverrides: r.ProfileOverrides,
				UserPrompt:       r.UserPrompt,
			})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}
