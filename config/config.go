package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var Conf Config

func Load() {
	var err error

	_, err = os.Stat(".env")

	if err != nil {
		log.Println(".env file does not exist\nReading from the environment directly")
	} else {
		err = godotenv.Load(".env")

		if err != nil {
			log.Fatal(err)
		}
	}

	Conf = FromEnv()
}

// FromEnv builds a Config from the current environment, applying defaults
// for anything unset or unparsable.
func FromEnv() Config {
	return Config{
		Environment: getEnv("ENVIRONMENT", "dev"),
		LogFolder:   getEnv("LOG_FOLDER", "drone_capture/log"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnv("PORT", "8080"),
		Drone: Drone{
			Address:        getEnv("DRONE_ADDR", "192.168.10.1:8889"),
			ControlAddr:    getEnv("CONTROL_ADDR", ":9000"),
			TelemetryAddr:  getEnv("TELEMETRY_ADDR", ":8890"),
			VideoURL:       getEnv("VIDEO_URL", "udp://@0.0.0.0:11111"),
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
			CommandTimeout: getDuration("COMMAND_TIMEOUT", 7*time.Second),
		},
		Media: Media{
			PhotosFolder:    getEnv("PHOTOS_FOLDER", "drone_capture/img"),
			VideosFolder:    getEnv("VIDEOS_FOLDER", "drone_capture/video"),
			RecordFPS:       getInt("RECORD_FPS", 20),
			RecordQueueSize: getInt("RECORD_QUEUE_SIZE", 10),
			RecordInterval:  getDuration("RECORD_INTERVAL", 50*time.Millisecond),
			JPEGQuality:     getInt("JPEG_QUALITY", 90),
		},
		FlightLog:  os.Getenv("FLIGHT_LOG_PATH"),
		AutoUpload: getBool("AUTO_UPLOAD", false),
		S3Config: S3{
			Bucket:      os.Getenv("S3_BUCKET_NAME"),
			AccessKey:   os.Getenv("S3_ACCESS_KEY"),
			SecretKey:   os.Getenv("S3_SECRET_KEY"),
			Region:      os.Getenv("S3_REGION"),
			EndpointUrl: os.Getenv("S3_ENDPOINT_URL"),
		},
	}
}

func GetConfig() Config {
	return Conf
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// getDuration accepts "0" to disable a timeout.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
