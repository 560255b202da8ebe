package jobutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ReadConfig fetches a config object and decodes it. Keys ending in .yaml or
// .yml are YAML, anything else is JSON. Values come back in their JSON form,
// so numbers are float64 for both.
func ReadConfig(ctx context.Context, store objectstore.Store, uri string) (map[string]any, error) {
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Key == "" {
		return nil, fmt.Errorf("config path %s does not name an object", loc)
	}
	data, err := objectstore.ReadAll(ctx, store, loc)
	if err != nil {
		return nil, err
	}
	cfg, err := DecodeConfig(data, path.Ext(loc.Key))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", loc, err)
	}
	return cfg, nil
}

// DecodeConfig decodes a config document; ext selects YAML for ".yaml" and
// ".yml".
func DecodeConfig(data []byte, ext string) (map[string]any, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		blob, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		data = blob
	}

	var cfg map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode json: trailing data after config object")
	}
	if cfg == nil {
		return nil, errors.New("config must be an object")
	}
	return cfg, nil
}

// ValidateConfig checks cfg against a JSON Schema document.
func ValidateConfig(cfg map[string]any, schemaJSON string) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any = map[string]any{}
	if cfg != nil {
		doc = cfg
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// ValidateDataFrame fails when f lacks any of the required columns.
func ValidateDataFrame(f *frame.Frame, required []string) error {
	return schema.ValidateColumns(required, f.Columns())
}
