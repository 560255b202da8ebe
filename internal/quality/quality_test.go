package quality

import (
	"reflect"
	"testing"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
)

func ptrInt64(v int64) *int64 { return &v }

func sample(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(frame.Schema{
		{Name: "id", Type: frame.TypeString},
		{Name: "category", Type: frame.TypeString, Nullable: true},
		{Name: "value", Type: frame.TypeDouble, Nullable: true},
	}, []frame.Row{
		{"1", "a", 1.0},
		{"2", "b", nil},
		{"3", "z", 3.0},
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return f
}

func TestRuleSpecValidate(t *testing.T) {
	spec := RuleSpec{
		Schema: RuleSpecSchemaV1,
		Checks: []CheckSpec{
			{ID: "cols", Type: CheckRequiredColumns, Columns: []string{"id"}},
			{ID: "rows", Type: CheckRowCount, MinRows: ptrInt64(1)},
		},
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := spec
	invalid.Schema = "bad"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("expected schema error")
	}

	dup := spec
	dup.Checks = []CheckSpec{spec.Checks[0], spec.Checks[0]}
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}

	bounds := spec
	bounds.Checks = []CheckSpec{{ID: "rows", Type: CheckRowCount, MinRows: ptrInt64(5), MaxRows: ptrInt64(1)}}
	if err := bounds.Validate(); err == nil {
		t.Fatalf("expected bounds error")
	}

	unknown := spec
	unknown.Checks = []CheckSpec{{ID: "x", Type: "regex"}}
	if err := unknown.Validate(); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestEvaluate(t *testing.T) {
	spec := RuleSpec{
		Schema: RuleSpecSchemaV1,
		Checks: []CheckSpec{
			{ID: "cols", Type: CheckRequiredColumns, Columns: []string{"id", "timestamp"}},
			{ID: "nonnull", Type: CheckNonNullColumns, Columns: []string{"id", "value"}},
			{ID: "rows", Type: CheckRowCount, MinRows: ptrInt64(1), MaxRows: ptrInt64(10)},
			{ID: "cats", Type: CheckAllowedValues, Column: "category", Allowed: []string{"a", "b"}},
		},
	}
	now := time.Unix(1700000000, 0)
	report := Evaluate(now, Subject{JobName: "job", RunID: "run", Dataset: "db.t"}, spec, sample(t))

	if report.Status != StatusFail {
		t.Fatalf("Status=%q, want fail", report.Status)
	}
	if report.Summary.ChecksTotal != 4 || report.Summary.ChecksPass != 1 || report.Summary.ChecksFail != 3 {
		t.Fatalf("Summary=%+v", report.Summary)
	}
	if !reflect.DeepEqual(report.Summary.Failing, []string{"cols", "nonnull", "cats"}) {
		t.Fatalf("Failing=%v", report.Summary.Failing)
	}
	if got := report.Checks[0].Observed["missing"]; !reflect.DeepEqual(got, []string{"timestamp"}) {
		t.Fatalf("missing=%v", got)
	}
	if got := report.Checks[1].Observed["null_counts"]; !reflect.DeepEqual(got, map[string]any{"value": 1}) {
		t.Fatalf("null_counts=%v", got)
	}
	if got := report.Checks[3].Observed["unexpected"]; !reflect.DeepEqual(got, []string{"z"}) {
		t.Fatalf("unexpected=%v", got)
	}
	if !report.EvaluatedAt.Equal(now) {
		t.Fatalf("EvaluatedAt=%v", report.EvaluatedAt)
	}
}

func TestEvaluateErrorOnUnknownColumn(t *testing.T) {
	spec := RuleSpec{
		Schema: RuleSpecSchemaV1,
		Checks: []CheckSpec{{ID: "cats", Type: CheckAllowedValues, Column: "nope", Allowed: []string{"a"}}},
	}
	report := Evaluate(time.Now(), Subject{}, spec, sample(t))
	if report.Status != StatusError || report.Summary.ChecksError != 1 {
		t.Fatalf("report=%+v", report)
	}
}
