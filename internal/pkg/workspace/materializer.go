// Package workspace writes agent workspaces to disk.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
	"github.com/spf13/afero"
)

const (
	dirMode    os.FileMode = 0o755
	fileMode   os.FileMode = 0o644
	secretMode os.FileMode = 0o600
)

// Materializer writes rendered artifacts into an agent layout.
type Materializer struct {
	fs afero.Fs
}

// NewMaterializer creates a materializer writing to fs.
func NewMaterializer(fs afero.Fs) *Materializer {
	return &Materializer{fs: fs}
}

// Materialize creates the layout directories and writes every artifact, replacing files
// from earlier runs. Identical artifacts always produce byte-identical files.
// Returns an error wrapping agent.ErrIO on any filesystem failure.
func (materializer *Materializer) Materialize(ctx context.Context, layout Layout, artifacts zeroclaw.Artifacts) error {
	for _, dir := range []string{layout.Root, layout.WorkspaceDir(), layout.SkillsDir()} {
		if err := materializer.fs.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("%w: create directory %s: %w", agent.ErrIO, dir, err)
		}
	}

	files := []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{path: layout.ConfigPath(), data: artifacts.Config, mode: secretMode},
		{path: layout.PersonaPath(), data: artifacts.Persona, mode: fileMode},
		{path: layout.HeartbeatPath(), data: artifacts.Heartbeat, mode: fileMode},
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := materializer.writeAtomic(file.path, file.data, file.mode); err != nil {
			return err
		}
	}

	skillPaths := make([]string, 0, len(artifacts.Skills))
	for skillPath := range artifacts.Skills {
		skillPaths = append(skillPaths, skillPath)
	}
	slices.Sort(skillPaths)

	for _, skillPath := range skillPaths {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := skillTarget(layout.SkillsDir(), skillPath)
		if err != nil {
			return err
		}

		if err := materializer.fs.MkdirAll(filepath.Dir(target), dirMode); err != nil {
			return fmt.Errorf("%w: create directory %s: %w", agent.ErrIO, filepath.Dir(target), err)
		}

		if err := materializer.writeAtomic(target, artifacts.Skills[skillPath], fileMode); err != nil {
			return err
		}
	}

	slog.Debug("Workspace materialized.",
		slog.String("root", layout.Root),
		slog.Int("skills", len(skillPaths)),
	)

	return nil
}

// writeAtomic writes data next to path and renames it into place.
func (materializer *Materializer) writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := path + "~"

	if err := afero.WriteFile(materializer.fs, tmpPath, data, mode); err != nil {
		return fmt.Errorf("%w: write temp file %s: %w", agent.ErrIO, tmpPath, err)
	}

	if err := materializer.fs.Chmod(tmpPath, mode); err != nil {
		_ = materializer.fs.Remove(tmpPath)
		return fmt.Errorf("%w: chmod %s: %w", agent.ErrIO, tmpPath, err)
	}

	if err := materializer.fs.Rename(tmpPath, path); err != nil {
		_ = materializer.fs.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp file %s: %w", agent.ErrIO, tmpPath, err)
	}

	return nil
}

func skillTarget(skillsDir, skillPath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(skillPath))
	if filepath.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: skill path %q escapes the skills directory", agent.ErrIO, skillPath)
	}

	return filepath.Join(skillsDir, cleaned), nil
}
