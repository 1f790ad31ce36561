package sink

import (
	"context"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/beerpi/beerpi/internal/config"
	"github.com/beerpi/beerpi/internal/sensor"
)

// measurement is the InfluxDB measurement name. Fixed since the first
// deployment; dashboards query it by name.
const measurement = "beerpi"

// pointWriter abstracts the blocking write API for tests.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// TimeSeries writes one point per tick to InfluxDB 2.x: fields
// temperature (float, 0.0 when the sample carried none) and relay
// (0/1), tagged with the acquisition mode, timestamped at acquisition
// time.
type TimeSeries struct {
	client influxdb2.Client
	api    pointWriter
	logger *slog.Logger
}

// NewTimeSeries creates the time-series sink. The client connects
// lazily; an unreachable endpoint surfaces as per-tick write failures,
// which the fan-out isolates.
func NewTimeSeries(cfg config.InfluxConfig, logger *slog.Logger) *TimeSeries {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &TimeSeries{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}
}

// Name implements Sink.
func (t *TimeSeries) Name() string { return "timeseries" }

// Write implements Sink.
func (t *TimeSeries) Write(ctx context.Context, s sensor.Sample) error {
	temp := 0.0
	if s.Temperature != nil {
		temp = *s.Temperature
	}

	relay := 0
	if s.Relay == sensor.RelayOn {
		relay = 1
	}

	point := influxdb2.NewPoint(measurement,
		map[string]string{"mode": string(s.Mode)},
		map[string]any{
			"temperature": temp,
			"relay":       relay,
		},
		s.ObservedAt,
	)

	return t.api.WritePoint(ctx, point)
}

// Close flushes and releases the underlying client.
func (t *TimeSeries) Close() {
	t.client.Close()
}
