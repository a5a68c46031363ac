package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/types"
	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

// Condensed log columns.
const (
	ColConversationID          = "conversation_id"
	ColMessageID               = "messageId"
	ColRole                    = "role"
	ColMessage                 = "message"
	ColLocationDetails         = "location_details"
	ColExpectedLocationDetails = "expected_location_details"
	ColTestResult              = "test_result"
	ColEndReason               = "convo_end_reason"
)

var baseColumns = []string{ColConversationID, ColMessageID, ColRole, ColMessage}

// contextColumns are copied from the harness context when any message of
// the conversation carries them.
var contextColumns = []string{"visited_agents", "city", "state", "zip_code", "location", ColLocationDetails, "weather_category"}

const baseColWidth = 20.0

var colWidthScale = map[string]float64{
	ColConversationID:          0.4,
	ColMessageID:               0.45,
	ColRole:                    0.4,
	ColMessage:                 3.5,
	ColLocationDetails:         1.05,
	ColExpectedLocationDetails: 1.05,
}

type table struct {
	header []string
	rows   []map[string]any
}

func (t *table) addColumn(col string) {
	for _, h := range t.header {
		if h == col {
			return
		}
	}
	t.header = append(t.header, col)
}

// WriteCondensed appends conv to the xlsx workbook at path, one row per
// message. A trailing user message is left out.
func WriteCondensed(path string, conv *conversation.Conversation, endReason string, testResult map[string]any) error {
	next := condense(conv, endReason, testResult)
	if len(next.rows) == 0 {
		return nil
	}

	merged, err := readTable(path)
	if err != nil {
		return err
	}
	for _, h := range next.header {
		merged.addColumn(h)
	}
	merged.rows = append(merged.rows, next.rows...)
	merged.header = adjacent(merged.header, ColLocationDetails, ColExpectedLocationDetails)
	return writeTable(path, merged)
}

func condense(conv *conversation.Conversation, endReason string, testResult map[string]any) *table {
	msgs := conv.Messages()
	if n := len(msgs); n > 0 && msgs[n-1].Role == types.RoleUser {
		msgs = msgs[:n-1]
	}

	present := map[string]bool{}
	t := &table{header: append([]string{}, baseColumns...)}
	for i, m := range msgs {
		row := map[string]any{
			ColConversationID: conv.ID(),
			ColMessageID:      i + 1,
			ColRole:           string(m.Role),
			ColMessage:        m.Content,
		}
		if m.Snapshot != nil {
			for _, key := range contextColumns {
				if v, ok := m.Snapshot.Attributes[key]; ok && v != nil {
					row[key] = cellText(v)
					present[key] = true
				}
			}
		}
		t.rows = append(t.rows, row)
	}
	if len(t.rows) == 0 {
		return t
	}

	for _, key := range contextColumns {
		if present[key] {
			t.header = append(t.header, key)
		}
	}

	t.header = append(t.header, ColExpectedLocationDetails)
	if expected, ok := conv.CustomerProfile().Attributes["location"]; ok {
		for _, row := range t.rows {
			if s, _ := row[ColLocationDetails].(string); s != "" {
				row[ColExpectedLocationDetails] = cellText(expected)
			}
		}
	}

	last := t.rows[len(t.rows)-1]
	if len(testResult) > 0 {
		t.header = append(t.header, ColTestResult)
		last[ColTestResult] = cellText(testResult)
	}
	t.header = append(t.header, ColEndReason)
	last[ColEndReason] = endReason
	return t
}

func cellText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// adjacent moves b directly after a when both are present.
func adjacent(cols []string, a, b string) []string {
	ia, ib := -1, -1
	for i, c := range cols {
		switch c {
		case a:
			ia = i
		case b:
			ib = i
		}
	}
	if ia < 0 || ib < 0 || ib == ia+1 {
		return cols
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == b {
			continue
		}
		out = append(out, c)
		if c == a {
			out = append(out, b)
		}
	}
	return out
}

func readTable(path string) (*table, error) {
	t := &table{}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open condensed log: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read condensed log: %w", err)
	}
	if len(rows) == 0 {
		return t, nil
	}
	t.header = append(t.header, rows[0]...)
	for _, r := range rows[1:] {
		row := make(map[string]any, len(t.header))
		for i, v := range r {
			if i >= len(t.header) || v == "" {
				continue
			}
			if t.header[i] == ColMessageID {
				if n, err := strconv.Atoi(v); err == nil {
					row[ColMessageID] = n
					continue
				}
			}
			row[t.header[i]] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func writeTable(path string, t *table) error {
	f := excelize.NewFile()
	defer f.Close()

	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}
	firstRow, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    []excelize.Border{{Type: "top", Color: "000000", Style: 5}},
	})
	if err != nil {
		return err
	}

	for c, h := range t.header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		name, _ := excelize.ColumnNumberToName(c + 1)
		width := baseColWidth
		if s, ok := colWidthScale[h]; ok {
			width *= s
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
		if err := f.SetColStyle(sheet, name, wrap); err != nil {
			return err
		}
	}

	for r, row := range t.rows {
		for c, h := range t.header {
			v, ok := row[h]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		if id, _ := row[ColMessageID].(int); id == 1 {
			first, _ := excelize.CoordinatesToCellName(1, r+2)
			last, _ := excelize.CoordinatesToCellName(len(t.header), r+2)
			if err := f.SetCellStyle(sheet, first, last, firstRow); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save condensed log: %w", err)
	}
	return nil
}

// Columns returns the header of the condensed log at path.
func Columns(path string) ([]string, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return t.header, nil
}

// ConversationIDs returns the distinct conversation ids in the condensed
// log at path, sorted.
func ConversationIDs(path string) ([]string, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, row := range t.rows {
		id, _ := row[ColConversationID].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
