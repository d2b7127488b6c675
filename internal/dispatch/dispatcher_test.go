package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geowarn/internal/geofence"
	"geowarn/internal/registry"
	"geowarn/internal/sighting"
)

type fakeSender struct {
	mu        sync.Mutex
	locations map[int64]int
	texts     map[int64]int
	failFor   map[int64]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		locations: make(map[int64]int),
		texts:     make(map[int64]int),
		failFor:   make(map[int64]error),
	}
}

func (f *fakeSender) SendLocation(_ context.Context, chatID int64, _, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.locations[chatID]++
	return nil
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[chatID]++
	return nil
}

type staticRecipients []registry.Subscriber

func (r staticRecipients) Recipients(string) []registry.Subscriber { return r }

var tlv = &geofence.Region{ID: "tlv", DisplayName: "Tel Aviv", CenterLat: 32.08, CenterLon: 34.78, RadiusKm: 7}

func sample() sighting.Sighting {
	return sighting.Sighting{
		Latitude:   32.07,
		Longitude:  34.77,
		OccurredAt: time.Now(),
		Reporter:   "rider",
		MessageID:  1,
	}
}

func TestFanoutDeliversBothPayloads(t *testing.T) {
	sender := newFakeSender()
	d := New(sender, staticRecipients{{ID: 1, Notify: true}, {ID: 2, Notify: true}})

	d.Fanout(context.Background(), sample(), tlv)

	require.Equal(t, 1, sender.locations[1])
	require.Equal(t, 1, sender.texts[1])
	require.Equal(t, 1, sender.locations[2])
	require.Equal(t, 1, sender.texts[2])
}

func TestFanoutNilRegionIsNoop(t *testing.T) {
	sender := newFakeSender()
	d := New(sender, staticRecipients{{ID: 1, Notify: true}})

	d.Fanout(context.Background(), sample(), nil)

	require.Empty(t, sender.locations)
	require.Empty(t, sender.texts)
}

func TestFanoutIsolatesSubscriberFailures(t *testing.T) {
	sender := newFakeSender()
	sender.failFor[2] = errors.New("forbidden: bot was blocked by the user")
	d := New(sender, staticRecipients{
		{ID: 1, Notify: true},
		{ID: 2, Notify: true},
		{ID: 3, Notify: true},
	})

	d.Fanout(context.Background(), sample(), tlv)

	require.Equal(t, 1, sender.locations[1])
	require.Equal(t, 1, sender.locations[3])
	require.Zero(t, sender.locations[2])
	// The text half is still attempted for the failing subscriber.
	require.Equal(t, 1, sender.texts[2])
}

func TestFanoutUsesRegistryRecipients(t *testing.T) {
	// Going through a real registry covers the enabled+subscribed filter end
	// to end: a disabled subscriber never receives a delivery.
	idx, err := geofence.NewIndex([]geofence.Region{*tlv})
	require.NoError(t, err)
	reg := registry.New(999, idx)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, 1, []string{"tlv"}, true))
	require.NoError(t, reg.Register(ctx, 2, []string{"tlv"}, true))
	_, err = reg.ToggleNotifications(ctx, 2)
	require.NoError(t, err)

	sender := newFakeSender()
	d := New(sender, reg)
	d.Fanout(ctx, sample(), tlv)

	require.Equal(t, 1, sender.locations[1])
	require.Zero(t, sender.locations[2])
	require.Zero(t, sender.texts[2])
}

func TestFormatAlert(t *testing.T) {
	sg := sample()
	sg.OccurredAt = time.Date(2025, 6, 1, 15, 4, 0, 0, time.UTC)
	text := formatAlert(sg, tlv)
	require.Contains(t, text, "Tel Aviv")
	require.Contains(t, text, "rider")
	require.Contains(t, text, "15:04")
}
