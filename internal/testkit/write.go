package testkit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"godex/domain/expr"
)

// WriteDataset writes a generated dataset in the pipeline's input formats:
// counts.tsv, samples.tsv, and one membership file per ground-truth set
// (shifted_up.tsv, shifted_down.tsv). The paths of the written files are
// returned in that order.
func WriteDataset(dir string, ds *Dataset) (countsPath, samplesPath string, setPaths []string, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", "", nil, err
	}

	countsPath = filepath.Join(dir, "counts.tsv")
	if err = writeCounts(countsPath, ds.Matrix); err != nil {
		return "", "", nil, err
	}

	samplesPath = filepath.Join(dir, "samples.tsv")
	if err = writeSamples(samplesPath, ds.Samples); err != nil {
		return "", "", nil, err
	}

	for _, truth := range []struct {
		name string
		rows []int
	}{
		{"shifted_up", ds.ShiftedUp},
		{"shifted_down", ds.ShiftedDown},
	} {
		p := filepath.Join(dir, truth.name+".tsv")
		if err = writeSet(p, ds.Matrix, truth.rows); err != nil {
			return "", "", nil, err
		}
		setPaths = append(setPaths, p)
	}
	return countsPath, samplesPath, setPaths, nil
}

func writeCounts(path string, m *expr.CountMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	defer w.Flush()

	header := make([]string, 0, m.NSamples()+1)
	header = append(header, "gene_id")
	for _, s := range m.Samples {
		header = append(header, string(s))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, row := range m.Counts {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, string(m.Features[i]))
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'f', 0, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeSamples(path string, t *expr.SampleTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	defer w.Flush()

	header := append([]string{"sample_id"}, t.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, s := range t.Samples {
		rec := []string{string(s)}
		for _, col := range t.Columns {
			rec = append(rec, t.Values[col][i])
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeSet(path string, m *expr.CountMatrix, rows []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	defer w.Flush()

	if err := w.Write([]string{"gene_id"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{string(m.Features[r])}); err != nil {
			return err
		}
	}
	return w.Error()
}
