package workqueue

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const defaultQueueName = "workqueue"

type queueOptions struct {
	name          string
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// Option configures a WorkQueue.
type Option func(*queueOptions)

// WithName sets the name used in log records and as the queue.name metric
// attribute.
func WithName(name string) Option {
	return func(o *queueOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used for the queue
// instruments. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *queueOptions) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

func newQueueOptions(opts []Option) queueOptions {
	o := queueOptions{name: defaultQueueName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	return o
}
