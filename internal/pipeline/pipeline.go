// Package pipeline orchestrates ingestion of one inbound location event:
// validate, dedup, classify, store, mirror, fan out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"geowarn/internal/geofence"
	"geowarn/internal/platform/metrics"
	"geowarn/internal/sighting"
)

// Event is the strictly-typed inbound payload. The transport adapter parses
// the raw update into this at the boundary; nothing loosely typed flows past
// it.
type Event struct {
	Latitude        float64
	Longitude       float64
	SourceChatID    int64
	SourceMessageID int64
	SenderLabel     string
	OccurredAt      time.Time
}

// Outcome is the terminal state of one ingestion.
type Outcome int

const (
	// OutcomeRejected means validation failed; nothing was stored.
	OutcomeRejected Outcome = iota
	// OutcomeDuplicate means the event's message id was already stored.
	OutcomeDuplicate
	// OutcomeDispatched means the sighting was stored, a mirror push was
	// attempted (whatever its result), and fan-out ran.
	OutcomeDispatched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

// ValidationError reports a malformed inbound event. Dropped and logged, no
// retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Reason
}

// Classifier maps a coordinate to a region. The geofence index implements it.
type Classifier interface {
	Classify(lat, lon float64) *geofence.Region
}

// Mirror pushes a snapshot to the external document store.
type Mirror interface {
	Push(ctx context.Context, snap []sighting.Sighting) error
}

// Dispatcher fans a stored sighting out to subscribers.
type Dispatcher interface {
	Fanout(ctx context.Context, sg sighting.Sighting, region *geofence.Region)
}

// Pipeline wires the stages together. Stateless apart from its dependencies,
// so concurrent inbound events only contend inside the store.
type Pipeline struct {
	classifier Classifier
	store      *sighting.Store
	mirror     Mirror // nil when mirroring is not configured
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMirror enables mirror pushes after each accepted sighting.
func WithMirror(m Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline.
func New(classifier Classifier, store *sighting.Store, dispatcher Dispatcher, opts ...Option) (*Pipeline, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	p := &Pipeline{
		classifier: classifier,
		store:      store,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ingest runs one event through the pipeline. The returned error is non-nil
// only for validation failures; mirror and delivery failures are absorbed
// here so one broken external dependency never blocks the next event.
func (p *Pipeline) Ingest(ctx context.Context, ev Event) (Outcome, error) {
	ingestID := uuid.NewString()
	log := p.logger.With("ingest_id", ingestID, "message_id", ev.SourceMessageID)

	if err := validate(ev); err != nil {
		p.metrics.IncRejected()
		log.Warn("event rejected", "error", err)
		return OutcomeRejected, err
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	reporter := ev.SenderLabel
	if reporter == "" {
		reporter = "channel"
	}

	// Classification is pure and never fails; a nil region is a valid result
	// that stores the sighting but skips fan-out.
	region := p.classifier.Classify(ev.Latitude, ev.Longitude)

	sg := sighting.Sighting{
		Latitude:   ev.Latitude,
		Longitude:  ev.Longitude,
		OccurredAt: occurredAt,
		Reporter:   reporter,
		MessageID:  ev.SourceMessageID,
	}

	if p.store.Append(ctx, sg) == sighting.Duplicate {
		p.metrics.IncDuplicate()
		log.Debug("duplicate event ignored")
		return OutcomeDuplicate, nil
	}
	p.metrics.IncIngested()
	p.metrics.SetStoreSize(p.store.Len())

	regionID := ""
	if region != nil {
		regionID = region.ID
	}
	log.Info("sighting stored",
		"lat", ev.Latitude, "lon", ev.Longitude, "region", regionID, "total", p.store.Len())

	// Fire-and-forget mirror push: one attempt, failure logged and dropped.
	if p.mirror != nil {
		if err := p.mirror.Push(ctx, p.store.Snapshot()); err != nil {
			p.metrics.IncMirrorPush("error")
			log.Warn("mirror push failed", "error", err)
		} else {
			p.metrics.IncMirrorPush("ok")
		}
	}

	p.dispatcher.Fanout(ctx, sg, region)
	return OutcomeDispatched, nil
}

func validate(ev Event) error {
	if math.IsNaN(ev.Latitude) || math.IsNaN(ev.Longitude) {
		return &ValidationError{Reason: "coordinates are NaN"}
	}
	if ev.Latitude < -90 || ev.Latitude > 90 {
		return &ValidationError{Reason: fmt.Sprintf("latitude %v out of range", ev.Latitude)}
	}
	if ev.Longitude < -180 || ev.Longitude > 180 {
		return &ValidationError{Reason: fmt.Sprintf("longitude %v out of range", ev.Longitude)}
	}
	if ev.SourceMessageID == 0 {
		return &ValidationError{Reason: "missing source message id"}
	}
	return nil
}
