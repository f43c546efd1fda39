package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/cli/safeexec"
)

// LookupExecutable returns the absolute path of the first candidate found on PATH.
// Returns an error wrapping exec.ErrNotFound when no candidate is found.
func LookupExecutable(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no executable candidates")
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		path, err := safeexec.LookPath(candidate)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				continue
			}
			return "", fmt.Errorf("look up %s: %w", candidate, err)
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve %s path: %w", candidate, err)
		}

		return absPath, nil
	}

	return "", fmt.Errorf("%v: %w", candidates, exec.ErrNotFound)
}
