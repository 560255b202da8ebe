package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/jobutil"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/quality"
	"github.com/animus-labs/gluejobs/internal/schema"
	"github.com/animus-labs/gluejobs/internal/sink"
)

var ErrQualityFailed = errors.New("data quality checks did not pass")

var schemaAwareETL = Definition{
	Name:        "schema-aware-etl",
	Description: "Stamp catalog rows as processed, validate them and write partitioned parquet back to the catalog.",
	Required:    []string{"JOB_NAME", "database_name", "table_name", "output_path"},
	Optional:    []string{"schema_registry_name", "schema_name", "enable_schema_validation", "config_path"},
	Run:         runSchemaAwareETL,
}

var processedSchema = frame.Schema{
	{Name: "id", Type: frame.TypeString},
	{Name: "timestamp", Type: frame.TypeLong},
	{Name: "value", Type: frame.TypeDouble, Nullable: true},
	{Name: "category", Type: frame.TypeString, Nullable: true},
	{Name: "processed", Type: frame.TypeBoolean},
}

func runSchemaAwareETL(ctx context.Context, rt Runtime, params jobparams.Params) error {
	return runJob(ctx, rt, params, func(job *glue.Job) error {
		name := job.Name
		rt.Status.JobStart(name)

		cfg, err := loadJobConfig(ctx, rt, params)
		if err != nil {
			return err
		}

		database, table := params.Get("database_name"), params.Get("table_name")
		df, err := rt.Glue.FromCatalog(ctx, database, table)
		if err != nil {
			return err
		}
		now := rt.Glue.Now()
		if df, err = df.WithColumn("processed", frame.TypeBoolean, frame.Lit(true)); err != nil {
			return err
		}
		if df, err = df.WithColumn("timestamp", frame.TypeLong, frame.Lit(now.Unix())); err != nil {
			return err
		}

		if params.Flag("enable_schema_validation") {
			if err := schema.ValidateFrame(df, processedSchema); err != nil {
				return err
			}
			rt.Status.Info(name, "Schema validation passed successfully")
		}

		output := params.Get("output_path")
		if err := checkQuality(ctx, rt, job, cfg, df, database+"."+table, output); err != nil {
			return err
		}

		options := map[string]string{
			"useGlueParquetWriter": "true",
			"compression":          "snappy",
		}
		registryName, schemaName := params.Get("schema_registry_name"), params.Get("schema_name")
		if registryName != "" && schemaName != "" {
			options["schema.registry.name"] = registryName
			options["schema.registry.schema.name"] = schemaName
		}
		_, err = rt.Glue.WriteFrame(ctx, df, sink.Config{
			Path:                output,
			Format:              "glueparquet",
			PartitionKeys:       []string{"category"},
			EnableUpdateCatalog: true,
			UpdateBehavior:      sink.UpdateInDatabase,
			CatalogDatabase:     database,
			CatalogTable:        table + "_processed",
			Options:             options,
		})
		if err != nil {
			return err
		}

		rt.Status.JobCompletion(name)
		return nil
	})
}

// loadJobConfig reads the config named by config_path, falling back to the
// runtime default. No path means an empty config.
func loadJobConfig(ctx context.Context, rt Runtime, params jobparams.Params) (map[string]any, error) {
	path := strings.TrimSpace(params.GetDefault("config_path", rt.ConfigPath))
	if path == "" {
		return map[string]any{}, nil
	}
	cfg, err := jobutil.ReadConfig(ctx, rt.Glue.Store(), path)
	if err != nil {
		return nil, fmt.Errorf("load job config: %w", err)
	}
	rt.Glue.Logger().Info("job config loaded", "path", path, "keys", len(cfg))
	return cfg, nil
}

// checkQuality evaluates the config's "quality" rule spec, if any, and
// stores the report under <output>/_quality/.
func checkQuality(ctx context.Context, rt Runtime, job *glue.Job, cfg map[string]any, df *frame.Frame, dataset, output string) error {
	raw, ok := cfg["quality"]
	if !ok || raw == nil {
		return nil
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("quality config: %w", err)
	}
	var spec quality.RuleSpec
	if err := json.Unmarshal(blob, &spec); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}
	if strings.TrimSpace(spec.Schema) == "" {
		spec.Schema = quality.RuleSpecSchemaV1
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}

	report := quality.Evaluate(rt.Glue.Now(), quality.Subject{JobName: job.Name, RunID: job.RunID, Dataset: dataset}, spec, df)
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quality report: %w", err)
	}
	root, err := objectstore.ParseURI(output)
	if err != nil {
		return err
	}
	loc := root.Join("_quality", job.RunID+".json")
	if err := objectstore.WriteAll(ctx, rt.Glue.Store(), loc, body, "application/json"); err != nil {
		return err
	}
	rt.Status.Info(job.Name, fmt.Sprintf("Data quality %s (%d/%d checks passed)", report.Status, report.Summary.ChecksPass, report.Summary.ChecksTotal))

	if spec.Enforce && report.Status != quality.StatusPass {
		return fmt.Errorf("%w: %s", ErrQualityFailed, strings.Join(report.Summary.Failing, ", "))
	}
	return nil
}
