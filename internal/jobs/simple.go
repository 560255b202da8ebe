package jobs

import (
	"context"
	"fmt"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
)

var simpleJob = Definition{
	Name:        "simple-job",
	Description: "Build a small in-memory frame and print it.",
	Required:    []string{"JOB_NAME"},
	Run:         runSimpleJob,
}

func runSimpleJob(ctx context.Context, rt Runtime, params jobparams.Params) error {
	return runJob(ctx, rt, params, func(*glue.Job) error {
		df, err := frame.FromRecords([]string{"name", "age"}, [][]any{
			{"John", 30},
			{"Alice", 25},
			{"Bob", 35},
		})
		if err != nil {
			return err
		}
		if err := df.Show(rt.out(), 20); err != nil {
			return fmt.Errorf("show: %w", err)
		}
		return nil
	})
}
