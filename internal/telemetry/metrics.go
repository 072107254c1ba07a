package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/assetpack"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	OutputFilesTotal  metric.Int64Counter
	OutputBytesTotal  metric.Int64Counter
	BuildCacheHits    metric.Int64Counter
	PrecompressedSize metric.Int64Counter

	// Dev server metrics
	HotClients       metric.Int64UpDownCounter
	HotBroadcasts    metric.Int64Counter
	WatchEventsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Build metrics
	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpack.builds.total",
		metric.WithDescription("Total number of builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"assetpack.builds.errors.total",
		metric.WithDescription("Total number of builds that failed with errors"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpack.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	m.OutputFilesTotal, _ = meter.Int64Counter(
		"assetpack.outputs.files.total",
		metric.WithDescription("Total number of files emitted"),
		metric.WithUnit("{file}"),
	)

	m.OutputBytesTotal, _ = meter.Int64Counter(
		"assetpack.outputs.bytes.total",
		metric.WithDescription("Total number of bytes emitted"),
		metric.WithUnit("By"),
	)

	m.BuildCacheHits, _ = meter.Int64Counter(
		"assetpack.builds.cache_hits.total",
		metric.WithDescription("Total number of script transforms served from cache"),
		metric.WithUnit("{module}"),
	)

	m.PrecompressedSize, _ = meter.Int64Counter(
		"assetpack.precompress.bytes.total",
		metric.WithDescription("Total number of precompressed bytes written"),
		metric.WithUnit("By"),
	)

	// Dev server metrics
	m.HotClients, _ = meter.Int64UpDownCounter(
		"assetpack.hot.clients",
		metric.WithDescription("Number of connected hot reload clients"),
		metric.WithUnit("{client}"),
	)

	m.HotBroadcasts, _ = meter.Int64Counter(
		"assetpack.hot.broadcasts.total",
		metric.WithDescription("Total number of rebuild notifications sent"),
		metric.WithUnit("{message}"),
	)

	m.WatchEventsTotal, _ = meter.Int64Counter(
		"assetpack.watch.events.total",
		metric.WithDescription("Total number of debounced file change batches"),
		metric.WithUnit("{batch}"),
	)

	return m
}
