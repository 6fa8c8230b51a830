package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
)

func TestCompletion_AssignsOnce(t *testing.T) {
	c := newCompletion()
	_, ok, _ := c.Poll()
	require.False(t, ok)

	first := &graphql.Result{Data: map[string]any{"a": 1}}
	require.True(t, c.resolve(first))
	require.False(t, c.fail(errors.New("late")))
	require.False(t, c.resolve(&graphql.Result{}))

	res, ok, err := c.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	require.Same(t, first, res)
}

func TestCompletion_WaitHonoursContext(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// an assigned outcome wins over a done context
	boom := errors.New("boom")
	c.fail(boom)
	_, err = c.Wait(ctx)
	require.ErrorIs(t, err, boom)
}
