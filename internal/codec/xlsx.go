package codec

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSX writes the frame as a single worksheet with a header row. Compression
// is inherent to the container, so the compression option is ignored.
type XLSX struct{}

func (XLSX) Name() string { return "xlsx" }
func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSX) DefaultCompression() string { return CompressionNone }
func (XLSX) Extension(string) string    { return ".xlsx" }

func (XLSX) Encode(w io.Writer, f *frame.Frame, _ Options) error {
	book := excelize.NewFile()
	defer book.Close()

	header := make([]any, 0, len(f.Columns()))
	for _, name := range f.Columns() {
		header = append(header, name)
	}
	if err := book.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i := 0; i < f.Len(); i++ {
		src := f.Row(i)
		cells := make([]any, len(src))
		for j, v := range src {
			switch x := v.(type) {
			case nil:
				cells[j] = nil
			case time.Time:
				cells[j] = frame.FormatValue(x)
			default:
				cells[j] = x
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(xlsxSheet, cell, &cells); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i, err)
		}
	}
	if err := book.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func (XLSX) Decode(data []byte, hint frame.Schema) (*frame.Frame, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return frame.Empty(nil), nil
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx rows: %w", err)
	}
	if len(records) == 0 {
		return frame.Empty(nil), nil
	}
	return textColumns(records[0], records[1:], hint)
}
