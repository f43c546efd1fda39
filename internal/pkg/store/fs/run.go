// Package fs stores provisioning run records as JSON files.
package fs

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/spf13/afero"
)

const (
	runInputFileName  = "run.json"
	runStatusFileName = "status.json"
)

// RunRepository keeps one directory per run under basePath.
type RunRepository struct {
	basePath string
	fs       afero.Fs
	now      func() time.Time
}

var _ agent.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates the base directory and returns the repository.
func NewRunRepository(basePath string, fs afero.Fs) (*RunRepository, error) {
	if err := fs.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}

	return &RunRepository{basePath: basePath, fs: fs, now: time.Now}, nil
}

// Create stores the input and an initial fetching status for a new run.
func (repository *RunRepository) Create(ctx context.Context, input agent.RunInput) (agent.RunID, error) {
	if err := ctx.Err(); err != nil {
		return agent.EmptyRunID, err
	}

	if err := input.SellerID.Validate(); err != nil {
		return agent.EmptyRunID, err
	}

	id := agent.NewRunID()
	runPath := repository.runPath(id)

	if err := repository.fs.MkdirAll(runPath, 0o755); err != nil {
		return agent.EmptyRunID, fmt.Errorf("create run directory: %w", err)
	}

	if err := writeJSON(repository.fs, filepath.Join(runPath, runInputFileName), input); err != nil {
		return agent.EmptyRunID, fmt.Errorf("write run input: %w", err)
	}

	now := repository.now()
	status := agent.RunStatus{
		CreatedAt: now,
		UpdatedAt: now,
		State:     agent.RunFetching,
	}

	if err := writeJSON(repository.fs, filepath.Join(runPath, runStatusFileName), status); err != nil {
		return agent.EmptyRunID, fmt.Errorf("write run status: %w", err)
	}

	return id, nil
}

// GetInput returns the stored run input.
func (repository *RunRepository) GetInput(ctx context.Context, id agent.RunID) (agent.RunInput, error) {
	if err := repository.ensureExists(ctx, id); err != nil {
		return agent.RunInput{}, err
	}

	input, err := readJSON[agent.RunInput](repository.fs, filepath.Join(repository.runPath(id), runInputFileName))
	if err != nil {
		return agent.RunInput{}, fmt.Errorf("read run input: %w", err)
	}

	return input, nil
}

// GetStatus returns the stored run status.
func (repository *RunRepository) GetStatus(ctx context.Context, id agent.RunID) (agent.RunStatus, error) {
	if err := repository.ensureExists(ctx, id); err != nil {
		return agent.RunStatus{}, err
	}

	status, err := readJSON[agent.RunStatus](repository.fs, filepath.Join(repository.runPath(id), runStatusFileName))
	if err != nil {
		return agent.RunStatus{}, fmt.Errorf("read run status: %w", err)
	}

	return status, nil
}

// UpdateStatus replaces the run status and stamps UpdatedAt.
func (repository *RunRepository) UpdateStatus(ctx context.Context, id agent.RunID, status agent.RunStatus) error {
	if err := repository.ensureExists(ctx, id); err != nil {
		return err
	}

	status.UpdatedAt = repository.now()

	if err := writeJSON(repository.fs, filepath.Join(repository.runPath(id), runStatusFileName), status); err != nil {
		return fmt.Errorf("write run status: %w", err)
	}

	return nil
}

// List returns valid run identifiers, oldest first.
func (repository *RunRepository) List(ctx context.Context) ([]agent.RunID, error) {
	entries, err := afero.ReadDir(repository.fs, repository.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []agent.RunID{}, nil
		}
		return nil, fmt.Errorf("read runs directory: %w", err)
	}

	type listed struct {
		id        agent.RunID
		createdAt time.Time
	}

	runs := make([]listed, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !entry.IsDir() {
			continue
		}

		id := agent.RunID(entry.Name())
		if id.Validate() != nil {
			continue
		}

		var createdAt time.Time
		if status, err := repository.GetStatus(ctx, id); err == nil {
			createdAt = status.CreatedAt
		}

		runs = append(runs, listed{id: id, createdAt: createdAt})
	}

	slices.SortFunc(runs, func(a, b listed) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	ids := make([]agent.RunID, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.id)
	}

	return ids, nil
}

func (repository *RunRepository) runPath(id agent.RunID) string {
	return filepath.Join(repository.basePath, string(id))
}

func (repository *RunRepository) ensureExists(ctx context.Context, id agent.RunID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := id.Validate(); err != nil {
		return err
	}

	exists, err := afero.DirExists(repository.fs, repository.runPath(id))
	if err != nil {
		return fmt.Errorf("check run directory: %w", err)
	}

	if !exists {
		return agent.ErrRunNotFound
	}

	return nil
}
