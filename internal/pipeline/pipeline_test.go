package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"geowarn/internal/geofence"
	"geowarn/internal/sighting"
)

type fakeMirror struct {
	pushes []int // snapshot sizes, in attempt order
	err    error
}

func (m *fakeMirror) Push(_ context.Context, snap []sighting.Sighting) error {
	m.pushes = append(m.pushes, len(snap))
	return m.err
}

type fakeDispatcher struct {
	calls []fanoutCall
}

type fanoutCall struct {
	sighting sighting.Sighting
	region   *geofence.Region
}

func (d *fakeDispatcher) Fanout(_ context.Context, sg sighting.Sighting, region *geofence.Region) {
	d.calls = append(d.calls, fanoutCall{sighting: sg, region: region})
}

type PipelineSuite struct {
	suite.Suite
	ctx        context.Context
	store      *sighting.Store
	mirror     *fakeMirror
	dispatcher *fakeDispatcher
	pipe       *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	idx, err := geofence.NewIndex([]geofence.Region{
		{ID: "a", DisplayName: "A", CenterLat: 0, CenterLon: 0, RadiusKm: 10},
		{ID: "b", DisplayName: "B", CenterLat: 0, CenterLon: 0.05, RadiusKm: 10},
	})
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.store = sighting.NewStore(10)
	s.mirror = &fakeMirror{}
	s.dispatcher = &fakeDispatcher{}
	s.pipe, err = New(idx, s.store, s.dispatcher, WithMirror(s.mirror))
	s.Require().NoError(err)
}

func ev(msgID int64, lat, lon float64) Event {
	return Event{
		Latitude:        lat,
		Longitude:       lon,
		SourceChatID:    -100,
		SourceMessageID: msgID,
		SenderLabel:     "rider",
		OccurredAt:      time.Now(),
	}
}

func (s *PipelineSuite) TestHappyPath() {
	out, err := s.pipe.Ingest(s.ctx, ev(1, 0, 0.02))
	s.Require().NoError(err)
	s.Equal(OutcomeDispatched, out)

	s.Equal(1, s.store.Len())
	s.Equal([]int{1}, s.mirror.pushes)
	s.Require().Len(s.dispatcher.calls, 1)
	// Overlapping circles resolve to the earlier table entry.
	s.Equal("a", s.dispatcher.calls[0].region.ID)
	s.Equal(int64(1), s.dispatcher.calls[0].sighting.MessageID)
}

func (s *PipelineSuite) TestValidation() {
	cases := []struct {
		name string
		ev   Event
	}{
		{"nan latitude", ev(1, math.NaN(), 0)},
		{"latitude out of range", ev(1, 91, 0)},
		{"longitude out of range", ev(1, 0, -181)},
		{"missing message id", ev(0, 0, 0)},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			out, err := s.pipe.Ingest(s.ctx, tc.ev)
			s.Equal(OutcomeRejected, out)
			var vErr *ValidationError
			s.Require().ErrorAs(err, &vErr)
			s.Zero(s.store.Len())
			s.Empty(s.mirror.pushes)
			s.Empty(s.dispatcher.calls)
		})
	}
}

func (s *PipelineSuite) TestDuplicateStopsAtStore() {
	_, err := s.pipe.Ingest(s.ctx, ev(42, 0, 0))
	s.Require().NoError(err)

	out, err := s.pipe.Ingest(s.ctx, ev(42, 1, 1))
	s.Require().NoError(err)
	s.Equal(OutcomeDuplicate, out)

	s.Equal(1, s.store.Len())
	s.Len(s.mirror.pushes, 1, "duplicates must not trigger a mirror push")
	s.Len(s.dispatcher.calls, 1, "duplicates must not fan out")
}

func (s *PipelineSuite) TestMirrorConflictDoesNotBlockIngestion() {
	s.mirror.err = errors.New("mirror version conflict: status 409")

	out, err := s.pipe.Ingest(s.ctx, ev(1, 0, 0))
	s.Require().NoError(err)
	s.Equal(OutcomeDispatched, out)
	s.Equal(1, s.store.Len())
	s.Len(s.dispatcher.calls, 1, "fan-out runs regardless of mirror outcome")

	// The next ingestion still attempts its own push.
	_, err = s.pipe.Ingest(s.ctx, ev(2, 0, 0))
	s.Require().NoError(err)
	s.Equal([]int{1, 2}, s.mirror.pushes)
}

func (s *PipelineSuite) TestUnclassifiedSightingStoredButFanoutGetsNilRegion() {
	out, err := s.pipe.Ingest(s.ctx, ev(5, 45, 45))
	s.Require().NoError(err)
	s.Equal(OutcomeDispatched, out)

	s.Equal(1, s.store.Len(), "points outside all regions are still stored")
	s.Require().Len(s.dispatcher.calls, 1)
	s.Nil(s.dispatcher.calls[0].region)
}

func (s *PipelineSuite) TestDefaultsAppliedToSparseEvents() {
	e := ev(9, 0, 0)
	e.SenderLabel = ""
	e.OccurredAt = time.Time{}

	_, err := s.pipe.Ingest(s.ctx, e)
	s.Require().NoError(err)

	snap := s.store.Snapshot()
	s.Require().Len(snap, 1)
	s.Equal("channel", snap[0].Reporter)
	s.WithinDuration(time.Now(), snap[0].OccurredAt, 5*time.Second)
}

func (s *PipelineSuite) TestNoMirrorConfigured() {
	idx, err := geofence.NewIndex([]geofence.Region{{ID: "a", CenterLat: 0, CenterLon: 0, RadiusKm: 10}})
	s.Require().NoError(err)
	pipe, err := New(idx, sighting.NewStore(10), s.dispatcher)
	s.Require().NoError(err)

	out, err := pipe.Ingest(s.ctx, ev(1, 0, 0))
	s.Require().NoError(err)
	s.Equal(OutcomeDispatched, out)
}
