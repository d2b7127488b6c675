//go:build integration

package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"geowarn/internal/registry"
	"geowarn/pkg/testutil/containers"
)

type allRegions struct{}

func (allRegions) Has(string) bool { return true }

func TestRedisPersisterRoundTrip(t *testing.T) {
	client := containers.NewRedisClient(t)
	ctx := context.Background()
	p := registry.NewRedisPersister(client, "test:subscribers")

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)

	want := []registry.Subscriber{
		{ID: 1, Regions: []string{"tlv"}, Notify: true, Role: registry.RoleRegular},
		{ID: 2, Regions: []string{}, Notify: false, Role: registry.RoleAdmin},
	}
	require.NoError(t, p.Save(ctx, want))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRegistryRehydratesThroughRedis(t *testing.T) {
	client := containers.NewRedisClient(t)
	ctx := context.Background()
	p := registry.NewRedisPersister(client, "test:reg-rehydrate")

	first := registry.New(1000, allRegions{}, registry.WithPersister(p))
	require.NoError(t, first.Register(ctx, 5, []string{"tlv"}, true))
	require.NoError(t, first.GrantAdmin(ctx, 1000, 5))

	second := registry.New(1000, allRegions{}, registry.WithPersister(p))
	require.NoError(t, second.Rehydrate(ctx))
	require.True(t, second.IsAdmin(5))
	sub, err := second.Get(5)
	require.NoError(t, err)
	require.Equal(t, []string{"tlv"}, sub.Regions)
}
