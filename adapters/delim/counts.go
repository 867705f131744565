// Package delim loads the pipeline's delimited text inputs: the gene-by-sample
// count matrix, the sample annotation table, and gene-set membership files.
// Count matrices may be gzip-compressed (".gz" suffix).
package delim

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"

	"godex/domain/core"
	"godex/domain/expr"
)

// scanBufferSize accommodates count-matrix rows with thousands of samples
const scanBufferSize = 1 << 20

// LoadCountMatrix reads a tab-delimited count matrix. The header row holds the
// feature-ID column label followed by one sample ID per column; each data row
// holds a feature ID followed by its per-sample counts. A ".gz" path is
// decompressed transparently.
func LoadCountMatrix(path string) (*expr.CountMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapCode(core.CodeDataFormat, "cannot open count matrix", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, core.WrapCode(core.CodeDataFormat, "cannot decompress count matrix", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	if !scanner.Scan() {
		return nil, core.DataFormat("count matrix is empty")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) < 2 {
		return nil, core.DataFormat("count matrix header has no sample columns")
	}
	samples := make([]core.SampleID, len(header)-1)
	for j, s := range header[1:] {
		samples[j] = core.SampleID(strings.TrimSpace(s))
	}

	var features []core.FeatureID
	var counts [][]float64
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(header) {
			return nil, core.DataFormatf("count matrix line %d has %d fields, expected %d", line, len(fields), len(header))
		}
		row := make([]float64, len(samples))
		for j, field := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, core.DataFormatf("count matrix line %d column %q: non-numeric count %q", line, samples[j], field)
			}
			row[j] = v
		}
		features = append(features, core.FeatureID(strings.TrimSpace(fields[0])))
		counts = append(counts, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, core.WrapCode(core.CodeDataFormat, "reading count matrix", err)
	}

	return expr.NewCountMatrix(features, samples, counts)
}
