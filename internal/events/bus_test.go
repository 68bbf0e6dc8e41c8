package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_LifecycleOrder(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var order []string
	bus.OnSystemStarting(func(context.Context) error {
		order = append(order, "starting-1")
		return nil
	})
	bus.OnSystemStarting(func(context.Context) error {
		order = append(order, "starting-2")
		return nil
	})
	bus.OnSystemStarted(func(context.Context) error {
		order = append(order, "started")
		return nil
	})
	bus.OnSystemStopping(func(context.Context) error {
		order = append(order, "stopping")
		return nil
	})

	require.NoError(t, bus.PublishSystemStarting(ctx))
	require.NoError(t, bus.PublishSystemStarted(ctx))
	require.NoError(t, bus.PublishSystemStopping(ctx))
	assert.Equal(t, []string{"starting-1", "starting-2", "started", "stopping"}, order)
}

func TestBus_HandlerErrorStopsDispatch(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	second := false
	bus.OnSystemStarting(func(context.Context) error { return fmt.Errorf("boom") })
	bus.OnSystemStarting(func(context.Context) error {
		second = true
		return nil
	})

	err := bus.PublishSystemStarting(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.False(t, second)
}

func TestBus_RefUpdatedPayload(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got RefUpdated
	bus.OnRefUpdated(func(_ context.Context, ev RefUpdated) error {
		got = ev
		return nil
	})

	ev := RefUpdated{
		ProjectID:   7,
		RefName:     "refs/heads/main",
		NewObjectID: plumbing.ZeroHash,
	}
	require.NoError(t, bus.PublishRefUpdated(ctx, ev))
	assert.Equal(t, ev, got)
}

func TestBus_DomainEvents(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	renames := 0
	deletes := 0
	bus.OnProjectRenamed(func(_ context.Context, ev ProjectRenamed) error {
		renames++
		assert.Equal(t, "alpha", ev.OldName)
		assert.Equal(t, "beta", ev.NewName)
		return nil
	})
	bus.OnProjectDeleted(func(_ context.Context, ev ProjectDeleted) error {
		deletes++
		assert.Equal(t, int64(3), ev.ProjectID)
		return nil
	})

	require.NoError(t, bus.PublishProjectRenamed(ctx, ProjectRenamed{ProjectID: 7, OldName: "alpha", NewName: "beta"}))
	require.NoError(t, bus.PublishProjectDeleted(ctx, ProjectDeleted{ProjectID: 3, Name: "gamma"}))
	assert.Equal(t, 1, renames)
	assert.Equal(t, 1, deletes)
}

func TestBus_NoHandlersIsNotAnError(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.PublishSystemStarting(context.Background()))
	require.NoError(t, bus.PublishProjectDeleted(context.Background(), ProjectDeleted{}))
}
