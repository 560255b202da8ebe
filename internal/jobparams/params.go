// Package jobparams resolves named job parameters from process arguments.
//
// Arguments come in the shapes a job runner passes them: "--name value",
// "--name=value" or "name=value". Anything else is ignored.
package jobparams

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrMissingParams = errors.New("missing required job parameters")

type MissingParamsError struct {
	Missing []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingParams.Error(), strings.Join(e.Missing, ", "))
}

func (e *MissingParamsError) Unwrap() error { return ErrMissingParams }

// Params is an immutable name to value mapping.
type Params struct {
	values map[string]string
}

// Resolve parses args and checks that every required name is present. An
// empty value counts as present. A required name given as a bare "--name"
// is an error; other bare names are dropped.
func Resolve(args []string, required []string) (Params, error) {
	values, bare := parse(args)
	for _, name := range required {
		if _, ok := bare[name]; ok {
			return Params{}, fmt.Errorf("argument --%s has no value", name)
		}
	}
	p := Params{values: values}
	if missing := p.missing(required); len(missing) > 0 {
		return Params{}, &MissingParamsError{Missing: missing}
	}
	return p, nil
}

// Parse reads every recognised argument. Repeated names keep the last value.
// A "--name" followed by another "--" token or by nothing has no value and
// is left out.
func Parse(args []string) map[string]string {
	values, _ := parse(args)
	return values
}

func parse(args []string) (map[string]string, map[string]struct{}) {
	values := make(map[string]string)
	bare := make(map[string]struct{})
	set := func(k, v string) {
		values[k] = v
		delete(bare, k)
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			name := strings.TrimPrefix(arg, "--")
			if name == "" {
				continue
			}
			if k, v, ok := strings.Cut(name, "="); ok {
				if k != "" {
					set(k, v)
				}
				continue
			}
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
				delete(values, name)
				bare[name] = struct{}{}
				continue
			}
			set(name, args[i+1])
			i++
			continue
		}
		if k, v, ok := strings.Cut(arg, "="); ok && k != "" && !strings.HasPrefix(k, "-") {
			set(k, v)
		}
	}
	return values, bare
}

// New builds Params from a map, mostly for tests and programmatic runs.
func New(values map[string]string) Params {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Params{values: cp}
}

func (p Params) missing(required []string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := p.values[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func (p Params) Get(name string) string {
	return p.values[name]
}

func (p Params) Lookup(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p Params) GetDefault(name, def string) string {
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

// Flag is true only for a case-insensitive "true".
func (p Params) Flag(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p.values[name]), "true")
}

func (p Params) Names() []string {
	out := make([]string, 0, len(p.values))
	for k := range p.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}
