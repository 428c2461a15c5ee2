package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
	"github.com/kilianp07/rcpanel/infra/logger"
)

// InfluxSink writes panel events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDispatch writes one dispatch attempt.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	p := write.NewPointWithMeasurement("dispatch").
		AddTag("command", ev.Command).
		AddTag("outcome", ev.Outcome).
		AddField("remaining_ms", round3(float64(ev.Remaining)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordInbound writes a received status message.
func (s *InfluxSink) RecordInbound(ev coremetrics.InboundEvent) error {
	p := write.NewPointWithMeasurement("status_message").
		AddTag("topic", ev.Topic).
		AddField("size", ev.Size).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordConnectionState writes a session state transition.
func (s *InfluxSink) RecordConnectionState(ev coremetrics.ConnectionEvent) error {
	p := write.NewPointWithMeasurement("connection_state").
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("transition", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
