package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dronegcs/app"
	"dronegcs/app/metrics"
	"dronegcs/config"
	"dronegcs/logger"
	"dronegcs/web/controller"
	"dronegcs/web/router"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.Load()
	conf := config.GetConfig()
	logfile := fmt.Sprintf("dronegcs_logs_%s.log", time.Now().Format("2006-01-02_15:04:05"))

	logman, err := logger.NewLogger(filepath.Join(conf.LogFolder, logfile), conf.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	session, err := app.NewSession(conf, logman, app.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
	if err != nil {
		logman.LogError(err, "Error creating session")
		os.Exit(1)
	}
	session.UploadLogs()

	ctrl := controller.NewController(session, logman)
	r := router.InitRouter(ctrl, logman, promhttp.Handler())

	srv := router.NewServer(fmt.Sprintf(":%s", conf.Port), r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logman.LogInfo("Starting server", "port", conf.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logman.LogError(err, "Error starting server")
			stop()
		}
	}()

	<-ctx.Done()
	logman.LogInfo("Shutting down")

	if err = session.Teardown(); err != nil {
		logman.LogError(err, "Error tearing down session")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		logman.LogError(err, "Error shutting down server")
	}
}
