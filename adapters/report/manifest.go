package report

import (
	"encoding/json"
	"os"

	"godex/domain/run"
)

// WriteManifest writes the run manifest as indented JSON
func WriteManifest(path string, m *run.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
