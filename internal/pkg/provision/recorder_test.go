package provision

import (
	"context"
	"fmt"
	"testing"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	storefs "github.com/sabamen88/zeroclaw-nemu/internal/pkg/store/fs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("records a successful run", func(t *testing.T) {
		f := newFixture(t)

		repository, err := storefs.NewRunRepository("/var/lib/nemu/runs", afero.NewMemMapFs())
		require.NoError(t, err)

		recorder, err := NewRunRecorder(ctx, repository, agent.RunInput{SellerID: "s-42", HostID: "host-a"})
		require.NoError(t, err)
		f.pipeline.deps.Observers = append(f.pipeline.deps.Observers, recorder)

		_, err = f.pipeline.Run(ctx, "s-42")
		require.NoError(t, err)
		require.NoError(t, recorder.Err())

		status, err := repository.GetStatus(ctx, recorder.RunID())
		require.NoError(t, err)
		assert.Equal(t, agent.RunDone, status.State)
		assert.Equal(t, 4000, status.Port)
		require.NotNil(t, status.FinishedAt)
		assert.Nil(t, status.Error)

		ids, err := repository.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []agent.RunID{recorder.RunID()}, ids)
	})

	t.Run("records the failed stage", func(t *testing.T) {
		f := newFixture(t)
		f.registry.getErr = fmt.Errorf("%w: timeout", agent.ErrUpstream)

		repository, err := storefs.NewRunRepository("/var/lib/nemu/runs", afero.NewMemMapFs())
		require.NoError(t, err)

		recorder, err := NewRunRecorder(ctx, repository, agent.RunInput{SellerID: "s-42", HostID: "host-a"})
		require.NoError(t, err)
		f.pipeline.deps.Observers = append(f.pipeline.deps.Observers, recorder)

		_, err = f.pipeline.Run(ctx, "s-42")
		require.Error(t, err)

		status, err := repository.GetStatus(ctx, recorder.RunID())
		require.NoError(t, err)
		assert.Equal(t, agent.RunFailed, status.State)
		assert.Equal(t, agent.RunFetching, status.FailedStage)
		require.NotNil(t, status.Error)
		assert.Contains(t, *status.Error, "upstream unavailable")
	})
}
