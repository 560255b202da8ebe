package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/animus-labs/gluejobs/internal/frame"
)

type CSV struct{}

func (CSV) Name() string               { return "csv" }
func (CSV) ContentType() string        { return "text/csv" }
func (CSV) DefaultCompression() string { return CompressionNone }

func (CSV) Extension(compression string) string {
	return rowExtension(".csv", compression)
}

func (CSV) Encode(w io.Writer, f *frame.Frame, opts Options) error {
	compression, err := NormalizeCompression(opts.Compression, CompressionNone)
	if err != nil {
		return err
	}
	cw, err := compressWriter(w, compression)
	if err != nil {
		return err
	}

	out := csv.NewWriter(cw)
	if err := out.Write(f.Columns()); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	record := make([]string, len(f.Columns()))
	for i := 0; i < f.Len(); i++ {
		for j, v := range f.Row(i) {
			record[j] = formatCell(v)
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("csv row %d: %w", i, err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return cw.Close()
}

func (CSV) Decode(data []byte, hint frame.Schema) (*frame.Frame, error) {
	plain, err := decompress(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(plain))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if len(records) == 0 {
		return frame.Empty(nil), nil
	}
	return textColumns(records[0], records[1:], hint)
}
