package config

import "time"

type Config struct {
	Environment string
	LogFolder   string
	LogLevel    string
	Port        string
	Drone       Drone
	Media       Media
	FlightLog   string
	AutoUpload  bool
	S3Config    S3
}

// Drone holds the fixed wire endpoints of the device session.
type Drone struct {
	Address        string
	ControlAddr    string
	TelemetryAddr  string
	VideoURL       string
	FFmpegPath     string
	CommandTimeout time.Duration
}

type Media struct {
	PhotosFolder    string
	VideosFolder    string
	RecordFPS       int
	RecordQueueSize int
	RecordInterval  time.Duration
	JPEGQuality     int
}

type S3 struct {
	AccessKey   string
	SecretKey   string
	Region      string
	Bucket      string
	EndpointUrl string
}

func (s S3) Enabled() bool {
	return s.Bucket != ""
}
