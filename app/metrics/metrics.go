// Package metrics instruments the control, telemetry, video and recording
// loops of a drone session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CommandsTotal        *prometheus.CounterVec
	CommandDuration      prometheus.Histogram
	TelemetryDatagrams   prometheus.Counter
	TelemetryFieldErrors prometheus.Counter
	LowBatteryWarnings   prometheus.Counter
	FramesDecoded        prometheus.Counter
	FrameDecodeErrors    prometheus.Counter
	RecordQueueDropped   prometheus.Counter
	RecordQueueDepth     prometheus.Gauge
	FramesWritten        prometheus.Counter
	Recording            prometheus.Gauge
	PhotosCaptured       prometheus.Counter
	UploadsTotal         *prometheus.CounterVec
}

// New registers the collectors on reg. Use prometheus.NewRegistry() in tests
// so repeated sessions do not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dronegcs_commands_total",
			Help: "Control commands sent to the device, by result",
		}, []string{"result"}),
		CommandDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dronegcs_command_duration_seconds",
			Help:    "Round trip time of control commands",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		TelemetryDatagrams: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_telemetry_datagrams_total",
			Help: "Telemetry datagrams received",
		}),
		TelemetryFieldErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_telemetry_field_errors_total",
			Help: "Telemetry fields that could not be converted",
		}),
		LowBatteryWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_low_battery_warnings_total",
			Help: "Low battery warnings raised",
		}),
		FramesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_frames_decoded_total",
			Help: "Video frames decoded",
		}),
		FrameDecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_frame_decode_errors_total",
			Help: "Video frames that failed to decode",
		}),
		RecordQueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_record_queue_dropped_total",
			Help: "Frames dropped because the record queue was full",
		}),
		RecordQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "dronegcs_record_queue_depth",
			Help: "Frames waiting to be written",
		}),
		FramesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_frames_written_total",
			Help: "Frames written to recordings",
		}),
		Recording: f.NewGauge(prometheus.GaugeOpts{
			Name: "dronegcs_recording",
			Help: "1 while a recording session is active",
		}),
		PhotosCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "dronegcs_photos_captured_total",
			Help: "Photos written to disk",
		}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dronegcs_uploads_total",
			Help: "Media uploads to object storage, by result",
		}, []string{"result"}),
	}
}

// NewUnregistered is for callers that never expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
