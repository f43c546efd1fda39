package fs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleInput = agent.RunInput{
	SellerID:       "s-42",
	ServiceBackend: agent.ServiceBackendSystemd,
	HostID:         "host-a",
}

func TestNewRunRepository(t *testing.T) {
	memFs := afero.NewMemMapFs()
	basePath := "/tmp/test-runs"

	repo, err := NewRunRepository(basePath, memFs)
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, basePath, repo.basePath)
	assert.Equal(t, memFs, repo.fs)

	exists, err := afero.DirExists(memFs, basePath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunRepository_Create(t *testing.T) {
	memFs := afero.NewMemMapFs()
	basePath := "/tmp/test-runs"
	repo, err := NewRunRepository(basePath, memFs)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := repo.Create(ctx, sampleInput)
	require.NoError(t, err)
	require.NoError(t, id.Validate())

	runPath := filepath.Join(basePath, string(id))

	fileExists, err := afero.Exists(memFs, filepath.Join(runPath, runInputFileName))
	require.NoError(t, err)
	assert.True(t, fileExists, "run.json should exist")

	retrievedInput, err := readJSON[agent.RunInput](memFs, filepath.Join(runPath, runInputFileName))
	require.NoError(t, err)
	assert.Equal(t, sampleInput, retrievedInput)

	retrievedStatus, err := readJSON[agent.RunStatus](memFs, filepath.Join(runPath, runStatusFileName))
	require.NoError(t, err)
	assert.Equal(t, agent.RunFetching, retrievedStatus.State)
	assert.WithinDuration(t, time.Now(), retrievedStatus.CreatedAt, time.Second)
	assert.Nil(t, retrievedStatus.FinishedAt)

	t.Run("invalid seller", func(t *testing.T) {
		invalid := sampleInput
		invalid.SellerID = "../../etc"

		id, err := repo.Create(ctx, invalid)
		require.ErrorIs(t, err, agent.ErrValidation)
		assert.Equal(t, agent.EmptyRunID, id)
	})
}

func TestRunRepository_Get(t *testing.T) {
	repo, err := NewRunRepository("/tmp/test-runs", afero.NewMemMapFs())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := repo.Create(ctx, sampleInput)
	require.NoError(t, err)

	t.Run("existing run", func(t *testing.T) {
		input, err := repo.GetInput(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, sampleInput, input)

		status, err := repo.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, agent.RunFetching, status.State)
	})

	t.Run("non-existing run", func(t *testing.T) {
		_, err := repo.GetStatus(ctx, agent.NewRunID())
		require.ErrorIs(t, err, agent.ErrRunNotFound)
	})

	t.Run("invalid ID", func(t *testing.T) {
		_, err := repo.GetInput(ctx, agent.RunID("invalid"))
		require.ErrorIs(t, err, agent.ErrRunIDInvalid)
	})
}

func TestRunRepository_UpdateStatus(t *testing.T) {
	repo, err := NewRunRepository("/tmp/test-runs", afero.NewMemMapFs())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := repo.Create(ctx, sampleInput)
	require.NoError(t, err)

	status, err := repo.GetStatus(ctx, id)
	require.NoError(t, err)

	finishedAt := time.Now()
	status.State = agent.RunFailed
	status.FailedStage = agent.RunRegistering
	status.Error = utils.ToPointer("service start failed")
	status.Port = 4001
	status.FinishedAt = &finishedAt
	status.Elapsed = utils.Duration(3 * time.Second)

	require.NoError(t, repo.UpdateStatus(ctx, id, status))

	updated, err := repo.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, agent.RunFailed, updated.State)
	assert.Equal(t, agent.RunRegistering, updated.FailedStage)
	assert.Equal(t, "service start failed", *updated.Error)
	assert.Equal(t, 4001, updated.Port)
	assert.Equal(t, utils.Duration(3*time.Second), updated.Elapsed)
	assert.False(t, updated.UpdatedAt.Before(status.UpdatedAt))

	require.ErrorIs(t, repo.UpdateStatus(ctx, agent.NewRunID(), status), agent.ErrRunNotFound)
}

func TestRunRepository_List(t *testing.T) {
	t.Run("empty base path returns empty slice", func(t *testing.T) {
		repo, err := NewRunRepository("/tmp/test-runs", afero.NewMemMapFs())
		require.NoError(t, err)

		ids, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("oldest first and ignores invalid entries", func(t *testing.T) {
		memFs := afero.NewMemMapFs()
		basePath := "/tmp/test-runs"
		repo, err := NewRunRepository(basePath, memFs)
		require.NoError(t, err)
		ctx := context.Background()

		clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		repo.now = func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}

		first, err := repo.Create(ctx, sampleInput)
		require.NoError(t, err)
		second, err := repo.Create(ctx, sampleInput)
		require.NoError(t, err)

		require.NoError(t, memFs.MkdirAll(filepath.Join(basePath, "not-a-uuid"), 0o755))
		require.NoError(t, afero.WriteFile(memFs, filepath.Join(basePath, "random-file"), []byte("x"), 0o644))

		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []agent.RunID{first, second}, ids)
	})
}
