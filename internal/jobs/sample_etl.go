package jobs

import (
	"context"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/sink"
)

var sampleETL = Definition{
	Name:        "sample-etl",
	Description: "Read a catalog table, apply a column mapping and write parquet.",
	Required:    []string{"JOB_NAME", "database_name", "table_name", "output_path"},
	Run:         runSampleETL,
}

var sampleMappings = []frame.Mapping{
	frame.M("column1", "string", "column1", "string"),
	frame.M("column2", "int", "column2", "int"),
	frame.M("column3", "double", "column3", "double"),
}

func runSampleETL(ctx context.Context, rt Runtime, params jobparams.Params) error {
	return runJob(ctx, rt, params, func(*glue.Job) error {
		datasource, err := rt.Glue.FromCatalog(ctx, params.Get("database_name"), params.Get("table_name"))
		if err != nil {
			return err
		}
		mapped, err := datasource.ApplyMapping(sampleMappings)
		if err != nil {
			return err
		}
		_, err = rt.Glue.WriteFrame(ctx, mapped, sink.Config{
			Path:   params.Get("output_path"),
			Format: "parquet",
		})
		return err
	})
}
