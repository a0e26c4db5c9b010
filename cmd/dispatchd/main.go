package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/internal/api"
	"github.com/fieldworks/dispatch/internal/checklist"
	"github.com/fieldworks/dispatch/internal/config"
	"github.com/fieldworks/dispatch/internal/docs"
	"github.com/fieldworks/dispatch/internal/lifecycle"
	"github.com/fieldworks/dispatch/internal/metrics"
	"github.com/fieldworks/dispatch/internal/notify"
	"github.com/fieldworks/dispatch/internal/otc"
	"github.com/fieldworks/dispatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	store, err := storage.NewStore(cfg.DB.Path)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open coordination database")
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database")
		}
	}()

	gate := otc.NewGate(cfg.OTC, time.Now)
	metricsSet := metrics.New(prometheus.DefaultRegisterer)
	engine := lifecycle.New(store, gate, metricsSet)
	tracker := checklist.NewTracker(store)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.SMS.Enabled {
		notifier = notify.NewSMSNotifier(cfg.SMS)
	} else {
		logrus.Warn("SMS gateway not configured, customer codes will not be delivered")
	}

	var docStore docs.Store
	if cfg.Docs.Enabled {
		client, err := docs.NewClient(cfg.Docs)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize document storage")
		}
		docStore = client
	} else {
		logrus.Warn("Document storage not configured, checklist uploads disabled")
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := api.NewHandler(engine, tracker, notifier, docStore)
	api.SetupRoutes(router, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Starting dispatch server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Fatal("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
