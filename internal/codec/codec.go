// Package codec encodes frames into the file formats sinks write and decodes
// them back when jobs read.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrUnsupportedCompression = errors.New("unsupported compression")
)

const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
)

type Options struct {
	Compression string
}

type Codec interface {
	Name() string
	ContentType() string
	// Extension is the file suffix for the given compression, dot included.
	Extension(compression string) string
	DefaultCompression() string
	Encode(w io.Writer, f *frame.Frame, opts Options) error
	// Decode reads a whole object. A non-empty hint types the columns it
	// names; other columns are inferred.
	Decode(data []byte, hint frame.Schema) (*frame.Frame, error)
}

// Lookup resolves a format name, accepting the usual aliases.
func Lookup(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "parquet", "glueparquet":
		return Parquet{}, nil
	case "csv":
		return CSV{}, nil
	case "json", "jsonl", "ndjson":
		return JSONLines{}, nil
	case "xlsx", "excel":
		return XLSX{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// NormalizeCompression maps user spellings to the constants above. Empty
// selects def.
func NormalizeCompression(compression, def string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(compression)) {
	case "":
		return def, nil
	case "none", "uncompressed", "off":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCompression, compression)
}

// compressWriter wraps w for the row formats, which support gzip and zstd
// stream compression.
func compressWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "", CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCompression, compression)
}

// decompress sniffs gzip and zstd magic bytes and returns the plain payload.
func decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case bytes.HasPrefix(data, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer d.Close()
		return d.DecodeAll(data, nil)
	}
	return data, nil
}

func rowExtension(base, compression string) string {
	switch compression {
	case CompressionGzip:
		return base + ".gz"
	case CompressionZstd:
		return base + ".zst"
	}
	return base
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// textColumns turns a header plus string cells into a frame. Empty cells are
// null. Hinted columns are cast to the hint type; the rest are inferred.
func textColumns(header []string, records [][]string, hint frame.Schema) (*frame.Frame, error) {
	schema := make(frame.Schema, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if f, ok := hint.Field(name); ok {
			schema[j] = frame.Field{Name: name, Type: f.Type, Nullable: true}
			continue
		}
		values := make([]string, 0, len(records))
		for _, rec := range records {
			if j < len(rec) {
				values = append(values, rec[j])
			}
		}
		schema[j] = frame.Field{Name: name, Type: inferTextType(values), Nullable: true}
	}

	rows := make([]frame.Row, len(records))
	for i, rec := range records {
		row := make(frame.Row, len(header))
		for j := range header {
			if j >= len(rec) || rec[j] == "" {
				continue
			}
			v, ok := frame.Cast(rec[j], schema[j].Type)
			if ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return frame.New(schema, rows)
}

func inferTextType(values []string) frame.Type {
	isLong, isDouble, isBool := true, true, true
	seen := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if _, ok := frame.Cast(v, frame.TypeLong); !ok || strings.ContainsAny(v, ".eE") {
			isLong = false
		}
		if _, ok := frame.Cast(v, frame.TypeDouble); !ok {
			isDouble = false
		}
		if !strings.EqualFold(v, "true") && !strings.EqualFold(v, "false") {
			isBool = false
		}
	}
	switch {
	case !seen:
		return frame.TypeString
	case isLong:
		return frame.TypeLong
	case isDouble:
		return frame.TypeDouble
	case isBool:
		return frame.TypeBoolean
	}
	return frame.TypeString
}

// formatCell renders a value for the text formats; null is empty.
func formatCell(v any) string {
	if v == nil {
		return ""
	}
	return frame.FormatValue(v)
}
