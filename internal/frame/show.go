package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Show prints up to n rows as a bordered table. n <= 0 prints 20 rows.
func (f *Frame) Show(w io.Writer, n int) error {
	if n <= 0 {
		n = 20
	}
	limit := min(n, len(f.rows))

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(f.schema.Names())
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetCenterSeparator("+")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	for i := 0; i < limit; i++ {
		line := make([]string, len(f.schema))
		for j, v := range f.rows[i] {
			line[j] = FormatValue(v)
		}
		table.Append(line)
	}
	table.Render()

	if len(f.rows) > limit {
		fmt.Fprintf(&buf, "only showing top %d rows\n", limit)
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}
