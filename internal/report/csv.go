package report

import (
	"bytes"
	"strings"
)

// csv quotes every field and doubles embedded quotes. Rows are separated by
// LF with no trailing newline.
func (e *Exporter) csv(in Input) []byte {
	var buf bytes.Buffer
	writeRecord(&buf, []string{"Hash", "From", "To", "Value (ETH)", fiatLabel(in.Fiat), "Timestamp"})
	for _, tx := range in.Transactions {
		buf.WriteByte('\n')
		writeRecord(&buf, e.row(tx, in.Valuations))
	}
	return buf.Bytes()
}

func writeRecord(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
}
