package delim

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"godex/domain/core"
	"godex/domain/expr"
)

// LoadGeneSet reads one gene-set membership file: a header row followed by one
// gene identifier per line (extra columns beyond the first are ignored). The
// set is named after the file's base name without extension.
func LoadGeneSet(path string) (expr.GeneSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return expr.GeneSet{}, core.WrapCode(core.CodeDataFormat, "cannot open gene-set file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	if !scanner.Scan() {
		return expr.GeneSet{}, core.DataFormatf("gene-set file %s is empty", path)
	}

	var members []core.FeatureID
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		id := strings.TrimSpace(strings.SplitN(text, "\t", 2)[0])
		if id != "" {
			members = append(members, core.FeatureID(id))
		}
	}
	if err := scanner.Err(); err != nil {
		return expr.GeneSet{}, core.WrapCode(core.CodeDataFormat, "reading gene-set file", err)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return expr.GeneSet{Name: core.SetName(name), Members: members}, nil
}

// LoadGeneSets reads several membership files, one set per file
func LoadGeneSets(paths []string) ([]expr.GeneSet, error) {
	sets := make([]expr.GeneSet, 0, len(paths))
	for _, p := range paths {
		set, err := LoadGeneSet(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}
