// Package jobs holds the job scripts and the registry the CLI runs them from.
package jobs

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/jobutil"
)

// Runtime is what a job script gets to work with.
type Runtime struct {
	Glue   *glue.Context
	Status *jobutil.StatusLogger
	// Out receives console output such as Show tables.
	Out io.Writer
	// ConfigPath is the job config used when the job has no config_path
	// parameter.
	ConfigPath string
}

func (rt Runtime) out() io.Writer {
	if rt.Out == nil {
		return os.Stdout
	}
	return rt.Out
}

type Definition struct {
	Name        string
	Description string
	Required    []string
	Optional    []string
	Run         func(ctx context.Context, rt Runtime, params jobparams.Params) error
}

var registry = map[string]Definition{}

func register(def Definition) {
	if _, dup := registry[def.Name]; dup {
		panic("jobs: duplicate job " + def.Name)
	}
	registry[def.Name] = def
}

func init() {
	register(simpleJob)
	register(sampleETL)
	register(schemaAwareETL)
	register(processData)
}

func Lookup(name string) (Definition, bool) {
	def, ok := registry[name]
	return def, ok
}

// All lists the registered jobs by name.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, def := range registry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// runJob wraps body in the job lifecycle: the run is committed when body
// succeeds and marked failed otherwise.
func runJob(ctx context.Context, rt Runtime, params jobparams.Params, body func(job *glue.Job) error) error {
	job, err := rt.Glue.InitJob(ctx, params.Get("JOB_NAME"), params)
	if err != nil {
		return err
	}
	if err := body(job); err != nil {
		if ferr := job.Fail(ctx, err); ferr != nil {
			rt.Glue.Logger().Error("record job failure", "job", job.Name, "error", ferr)
		}
		return err
	}
	return job.Commit(ctx)
}
