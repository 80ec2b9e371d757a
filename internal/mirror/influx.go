package mirror

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/plantpod/pod-agent/internal/model"
)

const (
	measurementMoisture = "plant_moisture"
	measurementClimate  = "pod_climate"
)

// InfluxSink keeps a local time series of every payload.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxSink opens a blocking writer on org/bucket.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{client: client, write: client.WriteAPIBlocking(org, bucket)}
}

func (s *InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) Write(ctx context.Context, p model.TelemetryPayload) error {
	points := Points(p)
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Ping reports whether the server answers.
func (s *InfluxSink) Ping(ctx context.Context) bool {
	ok, err := s.client.Ping(ctx)
	return err == nil && ok
}

func (s *InfluxSink) Close() {
	s.client.Close()
}

// Points converts a payload into one point per plant plus one climate point
// when global_info is complete.
func Points(p model.TelemetryPayload) []*write.Point {
	at := time.Unix(p.At, 0).UTC()
	points := make([]*write.Point, 0, len(p.PlantInfo)+1)

	for id, r := range p.PlantInfo {
		points = append(points, influxdb2.NewPoint(measurementMoisture,
			map[string]string{"pod_id": p.PodID, "plant_id": id},
			map[string]interface{}{
				"moisture":        r.Moisture,
				"last_watered_at": r.LastWateredAt,
				"watered":         p.Watered,
			},
			at))
	}

	if p.GlobalInfo.Complete() {
		points = append(points, influxdb2.NewPoint(measurementClimate,
			map[string]string{"pod_id": p.PodID},
			map[string]interface{}{
				"avg_temp_c":   *p.GlobalInfo.AvgTempC,
				"avg_humidity": *p.GlobalInfo.AvgHumidity,
			},
			at))
	}
	return points
}
