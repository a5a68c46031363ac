package scenario

import (
	"bytes"
	_ "embed"
	"fmt"
)

//go:embed data/principles.csv
var principlesCSV []byte

// Principles returns the criteria every conversation is graded against in
// addition to its scenario's own.
func Principles() ([]Row, error) {
	rows, err := LoadCSV(bytes.NewReader(principlesCSV))
	if err != nil {
		return nil, fmt.Errorf("load principles: %w", err)
	}
	return rows, nil
}
