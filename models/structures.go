package models

import (
	"time"

	"dronegcs/app/codec"
)

type Status struct {
	SessionID  string         `json:"sessionId"`
	State      string         `json:"state"`
	Recording  string         `json:"recording"`
	Streaming  bool           `json:"isStreaming"`
	Uploading  bool           `json:"isUploading"`
	Filter     string         `json:"filter"`
	DiskUsage  float64        `json:"diskUsage"`
	DiskFree   string         `json:"diskFree"`
	Telemetry  codec.Snapshot `json:"telemetry"`
	BatteryLow bool           `json:"batteryLow"`
	FlightTime string         `json:"flightTime"`
}

type FileDetails struct {
	Filename  string `json:"filename"`
	Kind      string `json:"kind"`
	Size      string `json:"size"`
	Modified  string `json:"modified"`
	Uploading bool   `json:"isUploading"`
	Recording bool   `json:"isRecording"`
}

type CommandRequest struct {
	Command string `json:"command"`
}

type CommandResponse struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

type FilterRequest struct {
	Name string `json:"name"`
}

type MediaResponse struct {
	Path string `json:"path"`
}

type UploadRequest struct {
	FileName string `json:"fileName"`
}

type FlightSummary struct {
	ID               string     `json:"id"`
	Device           string     `json:"device"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	Duration         string     `json:"duration"`
	TelemetrySamples int        `json:"telemetrySamples"`
}

type FlightMedia struct {
	Kind      string    `json:"kind"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
}
