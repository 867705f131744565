package report

import (
	"encoding/csv"
	"os"

	"godex/domain/core"
)

// WriteTSV writes one table as a tab-separated file
func WriteTSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return core.WrapCode(core.CodeInternalError, "cannot create output file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	defer w.Flush()

	if err := w.Write(t.Headers); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
