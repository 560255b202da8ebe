// Package schema checks that a dataset carries the columns a job expects.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/gluejobs/internal/frame"
)

var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError names every expected column absent from the data.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}

// MissingColumns returns expected \ actual in expected order, without
// duplicates.
func MissingColumns(expected, actual []string) []string {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[name] = struct{}{}
	}
	missing := make([]string, 0)
	seen := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func ValidateColumns(expected, actual []string) error {
	if missing := MissingColumns(expected, actual); len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// ValidateFrame checks column presence only; types and nullability in
// expected are informational.
func ValidateFrame(f *frame.Frame, expected frame.Schema) error {
	return ValidateColumns(expected.Names(), f.Columns())
}
