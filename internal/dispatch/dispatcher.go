// Package dispatch fans a classified sighting out to subscribed chats.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"geowarn/internal/geofence"
	"geowarn/internal/platform/metrics"
	"geowarn/internal/registry"
	"geowarn/internal/sighting"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	maxParallelDeliveries  = 8
)

// Sender pushes the two halves of a notification to one chat. The transport
// adapter implements it over the Bot API.
type Sender interface {
	SendLocation(ctx context.Context, chatID int64, lat, lon float64) error
	SendText(ctx context.Context, chatID int64, text string) error
}

// Recipients lists the subscribers eligible for a region. The registry
// implements it.
type Recipients interface {
	Recipients(regionID string) []registry.Subscriber
}

// Dispatcher delivers best-effort, at-least-once notifications per eligible
// subscriber. One subscriber's failure never interrupts the rest, and nothing
// is retried on later fan-outs.
type Dispatcher struct {
	sender  Sender
	subs    Recipients
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDeliveryTimeout bounds each subscriber's two-part delivery.
func WithDeliveryTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// New creates a Dispatcher.
func New(sender Sender, subs Recipients, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		subs:    subs,
		logger:  slog.Default(),
		timeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fanout notifies every enabled subscriber of the region. A nil region means
// the sighting fell outside every geofence and nobody is notified. Deliveries
// run in parallel; each subscriber's location+text pair is one failure unit.
func (d *Dispatcher) Fanout(ctx context.Context, sg sighting.Sighting, region *geofence.Region) {
	if region == nil {
		return
	}

	recipients := d.subs.Recipients(region.ID)
	if len(recipients) == 0 {
		return
	}

	start := time.Now()
	text := formatAlert(sg, region)

	var g errgroup.Group
	g.SetLimit(maxParallelDeliveries)
	for _, sub := range recipients {
		sub := sub
		g.Go(func() error {
			if err := d.deliver(ctx, sub.ID, sg, text); err != nil {
				// Blocked chats and rate limits land here. Log and move on;
				// the remaining subscribers must still get theirs.
				d.logger.Warn("notification delivery failed",
					"subscriber", sub.ID, "region", region.ID, "error", err)
				d.metrics.IncDelivery("error")
				return nil
			}
			d.metrics.IncDelivery("ok")
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.ObserveFanout(time.Since(start).Seconds())
	d.logger.Debug("fanout complete",
		"region", region.ID, "recipients", len(recipients), "took", time.Since(start))
}

// deliver sends the location pin and the alert text. Both are attempted even
// if the first fails; any failure marks the whole delivery failed.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, sg sighting.Sighting, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	locErr := d.sender.SendLocation(ctx, chatID, sg.Latitude, sg.Longitude)
	textErr := d.sender.SendText(ctx, chatID, text)

	if locErr != nil {
		return fmt.Errorf("send location: %w", locErr)
	}
	if textErr != nil {
		return fmt.Errorf("send text: %w", textErr)
	}
	return nil
}

func formatAlert(sg sighting.Sighting, region *geofence.Region) string {
	return fmt.Sprintf("⚠️ Inspector sighting in %s\nReported by %s at %s",
		region.DisplayName, sg.Reporter, sg.OccurredAt.Format("15:04"))
}
