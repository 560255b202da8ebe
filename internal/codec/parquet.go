package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// columnOrderKey records the frame's column order in the file metadata;
// parquet groups sort their fields by name.
const columnOrderKey = "gluejobs.column_order"

type Parquet struct{}

func (Parquet) Name() string               { return "parquet" }
func (Parquet) ContentType() string        { return "application/vnd.apache.parquet" }
func (Parquet) DefaultCompression() string { return CompressionSnappy }

func (Parquet) Extension(compression string) string {
	switch compression {
	case CompressionSnappy:
		return ".snappy.parquet"
	case CompressionGzip:
		return ".gz.parquet"
	case CompressionZstd:
		return ".zstd.parquet"
	}
	return ".parquet"
}

func parquetCodec(compression string) (compress.Codec, error) {
	switch compression {
	case CompressionNone:
		return &parquet.Uncompressed, nil
	case CompressionSnappy:
		return &parquet.Snappy, nil
	case CompressionGzip:
		return &parquet.Gzip, nil
	case CompressionZstd:
		return &parquet.Zstd, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCompression, compression)
}

func parquetNode(f frame.Field) parquet.Node {
	var node parquet.Node
	switch f.Type {
	case frame.TypeInt:
		node = parquet.Int(32)
	case frame.TypeLong:
		node = parquet.Int(64)
	case frame.TypeDouble:
		node = parquet.Leaf(parquet.DoubleType)
	case frame.TypeBoolean:
		node = parquet.Leaf(parquet.BooleanType)
	case frame.TypeTimestamp:
		node = parquet.Timestamp(parquet.Microsecond)
	default:
		node = parquet.String()
	}
	if f.Nullable {
		return parquet.Optional(node)
	}
	return parquet.Required(node)
}

func (Parquet) Encode(w io.Writer, f *frame.Frame, opts Options) error {
	fields := f.Schema()
	if len(fields) == 0 {
		return errors.New("parquet: frame has no columns")
	}
	compression, err := NormalizeCompression(opts.Compression, CompressionSnappy)
	if err != nil {
		return err
	}
	codec, err := parquetCodec(compression)
	if err != nil {
		return err
	}

	group := make(parquet.Group, len(fields))
	for _, field := range fields {
		group[field.Name] = parquetNode(field)
	}
	schema := parquet.NewSchema("frame", group)

	// Leaf order follows the schema's (sorted) field order.
	leaves := schema.Fields()
	source := make([]int, len(leaves))
	for i, leaf := range leaves {
		source[i] = fields.Index(leaf.Name())
	}

	order, err := json.Marshal(f.Columns())
	if err != nil {
		return fmt.Errorf("parquet column order: %w", err)
	}
	writer := parquet.NewWriter(w, schema,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(columnOrderKey, string(order)),
	)
	batch := make([]parquet.Row, 0, 256)
	for i := 0; i < f.Len(); i++ {
		src := f.Row(i)
		row := make(parquet.Row, len(leaves))
		for col, j := range source {
			row[col] = parquetValue(src[j], fields[j]).Level(0, definitionLevel(src[j], fields[j]), col)
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if _, err := writer.WriteRows(batch); err != nil {
				return fmt.Errorf("parquet write: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}
	return nil
}

func definitionLevel(v any, f frame.Field) int {
	if f.Nullable && v != nil {
		return 1
	}
	return 0
}

func parquetValue(v any, f frame.Field) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}
	switch x := v.(type) {
	case int32:
		return parquet.Int32Value(x)
	case int64:
		return parquet.Int64Value(x)
	case float64:
		return parquet.DoubleValue(x)
	case bool:
		return parquet.BooleanValue(x)
	case time.Time:
		return parquet.Int64Value(x.UnixMicro())
	case string:
		return parquet.ByteArrayValue([]byte(x))
	}
	return parquet.ByteArrayValue([]byte(frame.FormatValue(v)))
}

func (Parquet) Decode(data []byte, hint frame.Schema) (*frame.Frame, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	leaves := file.Schema().Fields()
	fields := make(frame.Schema, len(leaves))
	units := make([]time.Duration, len(leaves))
	for i, leaf := range leaves {
		fields[i] = frame.Field{Name: leaf.Name(), Type: parquetFieldType(leaf), Nullable: leaf.Optional()}
		units[i] = timestampUnit(leaf)
	}

	reader := parquet.NewReader(bytes.NewReader(data))
	defer reader.Close()

	rows := make([]frame.Row, 0, reader.NumRows())
	buf := make([]parquet.Row, 128)
	for {
		n, err := reader.ReadRows(buf)
		for _, prow := range buf[:n] {
			row := make(frame.Row, len(fields))
			for _, value := range prow {
				col := value.Column()
				if col < 0 || col >= len(fields) || value.IsNull() {
					continue
				}
				row[col] = fromParquetValue(value, fields[col].Type, units[col])
			}
			rows = append(rows, row)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parquet read: %w", err)
		}
		if n == 0 {
			break
		}
	}

	out, err := frame.New(fields, rows)
	if err != nil {
		return nil, err
	}
	if raw, ok := file.Lookup(columnOrderKey); ok && raw != "" {
		var order []string
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, fmt.Errorf("parquet column order: %w", err)
		}
		ordered, err := out.Select(order...)
		if err != nil {
			return nil, fmt.Errorf("parquet column order: %w", err)
		}
		out = ordered
	}
	if len(hint) > 0 {
		return applyHint(out, hint)
	}
	return out, nil
}

func parquetFieldType(f parquet.Field) frame.Type {
	t := f.Type()
	switch t.Kind() {
	case parquet.Boolean:
		return frame.TypeBoolean
	case parquet.Int32:
		return frame.TypeInt
	case parquet.Int64:
		if lt := t.LogicalType(); lt != nil && lt.Timestamp != nil {
			return frame.TypeTimestamp
		}
		return frame.TypeLong
	case parquet.Float, parquet.Double:
		return frame.TypeDouble
	}
	return frame.TypeString
}

// timestampUnit is the tick of an INT64 timestamp column. Files written by
// other engines may use millis or nanos.
func timestampUnit(f parquet.Field) time.Duration {
	lt := f.Type().LogicalType()
	if lt == nil || lt.Timestamp == nil {
		return time.Microsecond
	}
	switch {
	case lt.Timestamp.Unit.Millis != nil:
		return time.Millisecond
	case lt.Timestamp.Unit.Nanos != nil:
		return time.Nanosecond
	}
	return time.Microsecond
}

func fromParquetValue(v parquet.Value, t frame.Type, unit time.Duration) any {
	switch t {
	case frame.TypeBoolean:
		return v.Boolean()
	case frame.TypeInt:
		return v.Int32()
	case frame.TypeLong:
		return v.Int64()
	case frame.TypeTimestamp:
		switch unit {
		case time.Millisecond:
			return time.UnixMilli(v.Int64()).UTC()
		case time.Nanosecond:
			return time.Unix(0, v.Int64()).UTC()
		}
		return time.UnixMicro(v.Int64()).UTC()
	case frame.TypeDouble:
		if v.Kind() == parquet.Float {
			return float64(v.Float())
		}
		return v.Double()
	}
	return string(v.ByteArray())
}

// applyHint casts the columns named in hint, leaving others untouched.
func applyHint(f *frame.Frame, hint frame.Schema) (*frame.Frame, error) {
	schema := f.Schema()
	changed := false
	for i, field := range schema {
		if h, ok := hint.Field(field.Name); ok && h.Type != field.Type {
			schema[i].Type = h.Type
			schema[i].Nullable = true
			changed = true
		}
	}
	if !changed {
		return f, nil
	}
	return frame.Concat(schema, f)
}
