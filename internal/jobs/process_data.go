package jobs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
)

var processData = Definition{
	Name:        "process-data",
	Description: "Stamp every CSV object under input_path and copy it to output_path as processed_<name>.",
	Required:    []string{"JOB_NAME", "input_path", "output_path"},
	Run:         runProcessData,
}

const isoTimestampLayout = "2006-01-02T15:04:05.000000"

func runProcessData(ctx context.Context, rt Runtime, params jobparams.Params) error {
	return runJob(ctx, rt, params, func(job *glue.Job) error {
		rt.Status.JobStart(job.Name)
		input, err := objectstore.ParseURI(params.Get("input_path"))
		if err != nil {
			return err
		}
		output, err := objectstore.ParseURI(params.Get("output_path"))
		if err != nil {
			return err
		}
		rt.Status.Info(job.Name, "Reading data from "+input.String())

		// Listing happens once, so files written under the input prefix are
		// not picked up again.
		objects, err := rt.Glue.Store().List(ctx, input.Bucket, input.Key)
		if err != nil {
			return fmt.Errorf("list %s: %w", input, err)
		}
		for _, obj := range objects {
			if strings.HasSuffix(obj.Key, "/") {
				continue
			}
			src := objectstore.Location{Scheme: input.Scheme, Bucket: input.Bucket, Key: obj.Key}
			rt.Status.Info(job.Name, "Processing file: "+obj.Key)

			df, err := rt.Glue.FromOptions(ctx, src.String(), "csv")
			if err != nil {
				return err
			}
			if df.Len() == 0 {
				rt.Glue.Logger().Info("skipping empty file", "path", src.String())
				continue
			}
			stamp := rt.Glue.Now().Format(isoTimestampLayout)
			if df, err = df.WithColumn("processed", frame.TypeBoolean, frame.Lit(true)); err != nil {
				return err
			}
			if df, err = df.WithColumn("timestamp", frame.TypeString, frame.Lit(stamp)); err != nil {
				return err
			}

			dst := output.Join("processed_" + path.Base(obj.Key))
			if err := rt.Glue.WriteObject(ctx, df, dst.String(), "csv", ""); err != nil {
				return err
			}
			rt.Status.Info(job.Name, "Saved processed file to "+dst.String())
		}
		rt.Status.JobCompletion(job.Name)
		return nil
	})
}
