package router

import (
	"context"
	"net"
	"net/http"
	"time"

	"dronegcs/logger"
	"dronegcs/web/controller"

	"github.com/gorilla/mux"
)

// InitRouter wires the HTTP API. metrics is mounted at /metrics when non-nil.
func InitRouter(controller *controller.Controller, logger *logger.Logger, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(logger.LogRequest)

	router.HandleFunc("/api/status", controller.DeviceStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/telemetry", controller.Telemetry).Methods(http.MethodGet)
	router.HandleFunc("/api/telemetry/ws", controller.TelemetryFeed).Methods(http.MethodGet)
	router.HandleFunc("/api/flights", controller.ListFlights).Methods(http.MethodGet)
	router.HandleFunc("/api/flights/{id}/media", controller.FlightMedia).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	dronerouter := router.PathPrefix("/drone").Subrouter()
	dronerouter.HandleFunc("/connect", controller.Connect).Methods(http.MethodPost)
	dronerouter.HandleFunc("/stream", controller.BeginStreaming).Methods(http.MethodPost)
	dronerouter.HandleFunc("/teardown", controller.Teardown).Methods(http.MethodPost)
	dronerouter.HandleFunc("/command", controller.SendCommand).Methods(http.MethodPost)

	filerouter := router.PathPrefix("/file").Subrouter()
	filerouter.HandleFunc("/upload", controller.UploadFile).Methods(http.MethodPost)
	filerouter.HandleFunc("/upload-list", controller.ListFiles).Methods(http.MethodGet)
	filerouter.HandleFunc("/upload-all", controller.UploadAllFiles).Methods(http.MethodPost)

	camerarouter := router.PathPrefix("/camera").Subrouter()
	camerarouter.HandleFunc("/photo", controller.CapturePhoto).Methods(http.MethodPost)
	camerarouter.HandleFunc("/start-recording", controller.StartRecording).Methods(http.MethodPost)
	camerarouter.HandleFunc("/stop-recording", controller.StopRecording).Methods(http.MethodPost)
	camerarouter.HandleFunc("/pause-recording", controller.PauseRecording).Methods(http.MethodPost)
	camerarouter.HandleFunc("/resume-recording", controller.ResumeRecording).Methods(http.MethodPost)
	camerarouter.HandleFunc("/filter", controller.SetFilter).Methods(http.MethodPut)
	camerarouter.HandleFunc("/stream.mjpeg", controller.ShowStream).Methods(http.MethodGet)

	return router
}

// NewServer returns a server whose request contexts are cancelled as soon as
// Shutdown starts, so streaming handlers return instead of holding it open.
func NewServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
