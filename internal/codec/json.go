package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
)

// JSONLines writes one JSON object per row.
type JSONLines struct{}

func (JSONLines) Name() string               { return "json" }
func (JSONLines) ContentType() string        { return "application/x-ndjson" }
func (JSONLines) DefaultCompression() string { return CompressionNone }

func (JSONLines) Extension(compression string) string {
	return rowExtension(".json", compression)
}

func (JSONLines) Encode(w io.Writer, f *frame.Frame, opts Options) error {
	compression, err := NormalizeCompression(opts.Compression, CompressionNone)
	if err != nil {
		return err
	}
	cw, err := compressWriter(w, compression)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(cw)
	names := f.Columns()
	for i := 0; i < f.Len(); i++ {
		if err := writeJSONObject(bw, names, f.Row(i)); err != nil {
			return fmt.Errorf("json row %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return cw.Close()
}

// writeJSONObject keeps column order, which a map would lose.
func writeJSONObject(w *bufio.Writer, names []string, row frame.Row) error {
	w.WriteByte('{')
	for j, name := range names {
		if j > 0 {
			w.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		w.Write(key)
		w.WriteByte(':')
		v := row[j]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		w.Write(val)
	}
	w.WriteByte('}')
	return w.WriteByte('\n')
}

func (JSONLines) Decode(data []byte, hint frame.Schema) (*frame.Frame, error) {
	plain, err := decompress(data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()

	var (
		names   []string
		objects []map[string]any
	)
	index := make(map[string]struct{})
	for {
		obj, keys, err := readJSONObject(dec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("json object %d: %w", len(objects), err)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = struct{}{}
				names = append(names, k)
			}
		}
		objects = append(objects, obj)
	}

	schema := make(frame.Schema, len(names))
	for j, name := range names {
		if f, ok := hint.Field(name); ok {
			schema[j] = frame.Field{Name: name, Type: f.Type, Nullable: true}
			continue
		}
		schema[j] = frame.Field{Name: name, Type: inferValueType(objects, name), Nullable: true}
	}
	rows := make([]frame.Row, len(objects))
	for i, obj := range objects {
		row := make(frame.Row, len(schema))
		for j, field := range schema {
			if v, ok := frame.Cast(obj[field.Name], field.Type); ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return frame.New(schema, rows)
}

func readJSONObject(dec *json.Decoder) (map[string]any, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	obj := make(map[string]any)
	keys := make([]string, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		value, err := decodeJSONValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}
		if _, dup := obj[key]; !dup {
			keys = append(keys, key)
		}
		obj[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return obj, keys, nil
}

// decodeJSONValue flattens nested objects and arrays to their JSON text.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return string(trimmed), nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func inferValueType(objects []map[string]any, name string) frame.Type {
	var out frame.Type
	for _, obj := range objects {
		t, ok := frame.TypeOf(obj[name])
		if !ok {
			continue
		}
		switch {
		case out == "":
			out = t
		case out == t:
		case (out == frame.TypeLong && t == frame.TypeDouble) || (out == frame.TypeDouble && t == frame.TypeLong):
			out = frame.TypeDouble
		default:
			return frame.TypeString
		}
	}
	if out == "" {
		return frame.TypeString
	}
	return out
}
