package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/gluejobs/internal/frame"
)

func TestMissingColumns(t *testing.T) {
	cases := []struct {
		name     string
		expected []string
		actual   []string
		want     []string
	}{
		{name: "subset", expected: []string{"id", "value"}, actual: []string{"value", "id", "extra"}, want: []string{}},
		{name: "one missing", expected: []string{"id", "timestamp", "value"}, actual: []string{"id", "value"}, want: []string{"timestamp"}},
		{name: "order kept", expected: []string{"c", "a", "b"}, actual: nil, want: []string{"c", "a", "b"}},
		{name: "duplicates", expected: []string{"a", "a"}, actual: nil, want: []string{"a"}},
		{name: "empty expected", expected: nil, actual: []string{"a"}, want: []string{}},
		{name: "case sensitive", expected: []string{"ID"}, actual: []string{"id"}, want: []string{"ID"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MissingColumns(tc.expected, tc.actual)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("MissingColumns()=%v, want %v", got, tc.want)
			}
			err := ValidateColumns(tc.expected, tc.actual)
			if (err == nil) != (len(tc.want) == 0) {
				t.Fatalf("ValidateColumns() err=%v, want missing %v", err, tc.want)
			}
		})
	}
}

func TestValidateFrameReportsMissing(t *testing.T) {
	f, err := frame.New(frame.Schema{
		{Name: "id", Type: frame.TypeString},
		{Name: "value", Type: frame.TypeDouble},
	}, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	expected := frame.Schema{
		{Name: "id", Type: frame.TypeString},
		{Name: "timestamp", Type: frame.TypeLong},
		{Name: "value", Type: frame.TypeDouble, Nullable: true},
	}

	err = ValidateFrame(f, expected)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("ValidateFrame() err=%v, want ErrMissingColumns", err)
	}
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("ValidateFrame() err=%T", err)
	}
	if !reflect.DeepEqual(missing.Missing, []string{"timestamp"}) {
		t.Fatalf("Missing=%v, want [timestamp]", missing.Missing)
	}
	if err.Error() != "missing required columns: timestamp" {
		t.Fatalf("Error()=%q", err.Error())
	}
}
