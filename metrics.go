package workqueue

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/ordoaetheris/workqueue"

const (
	rejectNilItem = "nil_item"
	rejectClosed  = "closed"
)

// queueMetrics holds the instruments of a single queue. Attribute options are
// built once, when the queue is created.
type queueMetrics struct {
	itemsPut     metric.Int64Counter
	itemsTaken   metric.Int64Counter
	putRejected  metric.Int64Counter
	takeCanceled metric.Int64Counter
	depth        metric.Int64UpDownCounter
	waiting      metric.Int64UpDownCounter

	queueAttrs   metric.MeasurementOption
	nilItemAttrs metric.MeasurementOption
	closedAttrs  metric.MeasurementOption
}

func newQueueMetrics(mp metric.MeterProvider, name string) (*queueMetrics, error) {
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion("v0.1.0"))

	m := &queueMetrics{
		queueAttrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("queue.name", name),
		)),
		nilItemAttrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("queue.name", name),
			attribute.String("reason", rejectNilItem),
		)),
		closedAttrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("queue.name", name),
			attribute.String("reason", rejectClosed),
		)),
	}

	var err error
	if m.itemsPut, err = meter.Int64Counter(
		"workqueue_items_put_total",
		metric.WithDescription("Total number of items accepted by Put"),
	); err != nil {
		return nil, err
	}

	if m.itemsTaken, err = meter.Int64Counter(
		"workqueue_items_taken_total",
		metric.WithDescription("Total number of items handed out by Take or TryTake"),
	); err != nil {
		return nil, err
	}

	if m.putRejected, err = meter.Int64Counter(
		"workqueue_put_rejected_total",
		metric.WithDescription("Total number of rejected Put calls, by reason"),
	); err != nil {
		return nil, err
	}

	if m.takeCanceled, err = meter.Int64Counter(
		"workqueue_take_canceled_total",
		metric.WithDescription("Total number of Take calls aborted by their context"),
	); err != nil {
		return nil, err
	}

	if m.depth, err = meter.Int64UpDownCounter(
		"workqueue_depth",
		metric.WithDescription("Number of items currently queued"),
	); err != nil {
		return nil, err
	}

	if m.waiting, err = meter.Int64UpDownCounter(
		"workqueue_waiting_consumers",
		metric.WithDescription("Number of consumers currently blocked in Take"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func noopQueueMetrics(name string) *queueMetrics {
	m, _ := newQueueMetrics(noop.NewMeterProvider(), name)
	return m
}

func (m *queueMetrics) incPut() {
	ctx := context.Background()
	m.itemsPut.Add(ctx, 1, m.queueAttrs)
	m.depth.Add(ctx, 1, m.queueAttrs)
}

func (m *queueMetrics) incTaken() {
	ctx := context.Background()
	m.itemsTaken.Add(ctx, 1, m.queueAttrs)
	m.depth.Add(ctx, -1, m.queueAttrs)
}

func (m *queueMetrics) incRejected(reason string) {
	attrs := m.closedAttrs
	if reason == rejectNilItem {
		attrs = m.nilItemAttrs
	}
	m.putRejected.Add(context.Background(), 1, attrs)
}

func (m *queueMetrics) incCanceled() {
	m.takeCanceled.Add(context.Background(), 1, m.queueAttrs)
}

func (m *queueMetrics) addWaiting(delta int64) {
	m.waiting.Add(context.Background(), delta, m.queueAttrs)
}
