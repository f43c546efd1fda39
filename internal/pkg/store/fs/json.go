package fs

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

func readJSON[T any](fs afero.Fs, path string) (T, error) {
	var value T

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return value, err
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	return value, nil
}

// writeJSON writes value next to path and renames it into place.
func writeJSON(fs afero.Fs, path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmpPath := path + "~"

	if err := afero.WriteFile(fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
