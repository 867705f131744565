package delim

import (
	"bufio"
	"os"
	"strings"

	"godex/domain/core"
	"godex/domain/expr"
)

// LoadSampleTable reads a delimited sample annotation table: a header row with
// the sample-ID column label followed by covariate column names, then one row
// per sample. The delimiter is sniffed from the header (tab, then comma).
func LoadSampleTable(path string) (*expr.SampleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapCode(core.CodeDataFormat, "cannot open sample table", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	if !scanner.Scan() {
		return nil, core.DataFormat("sample table is empty")
	}
	headerLine := strings.TrimRight(scanner.Text(), "\r\n")
	sep := "\t"
	if !strings.Contains(headerLine, "\t") && strings.Contains(headerLine, ",") {
		sep = ","
	}
	header := strings.Split(headerLine, sep)
	if len(header) < 2 {
		return nil, core.DataFormat("sample table needs a sample-ID column and at least one covariate column")
	}
	columns := make([]string, len(header)-1)
	for j, c := range header[1:] {
		columns[j] = strings.TrimSpace(c)
	}

	var samples []core.SampleID
	values := make(map[string][]string, len(columns))
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, sep)
		if len(fields) != len(header) {
			return nil, core.DataFormatf("sample table line %d has %d fields, expected %d", line, len(fields), len(header))
		}
		samples = append(samples, core.SampleID(strings.TrimSpace(fields[0])))
		for j, col := range columns {
			values[col] = append(values[col], strings.TrimSpace(fields[j+1]))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.WrapCode(core.CodeDataFormat, "reading sample table", err)
	}

	return expr.NewSampleTable(samples, columns, values)
}

// AlignSamples reorders the sample table to the count matrix's column order.
// Every count-matrix sample must appear in the table; samples annotated but
// absent from the counts are dropped. Keeping metadata rows aligned to count
// columns is what keeps design-matrix rows aligned downstream.
func AlignSamples(table *expr.SampleTable, m *expr.CountMatrix) (*expr.SampleTable, error) {
	return table.Reorder(m.Samples)
}
