package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/binova/internal/config"
	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/services/ingest"
	"github.com/LeonardoBeccarini/binova/internal/store"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

func main() {
	cfg := config.Load("binova-ingest")
	log := logging.New(cfg.Log).With(logging.String("service", "ingest"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, w := range cfg.Warnings() {
		log.Warn(ctx, w)
	}

	if !cfg.MQTT.Enabled() {
		log.Error(ctx, "MQTT_HOST is required")
		os.Exit(1)
	}

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics registration failed", logging.Err(err))
		os.Exit(1)
	}

	cfg.Store.Breaker.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(ctx, "breaker state change",
			logging.String("breaker", name), logging.String("from", from.String()), logging.String("to", to.String()))
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Error(ctx, "store open failed", logging.Err(err))
		os.Exit(1)
	}
	defer st.Close()

	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Error(ctx, "mqtt connection failed", logging.Err(err))
		os.Exit(1)
	}
	defer rabbitmq.CloseRabbitMQConn(client, log)

	consumer := rabbitmq.NewConsumer(client, cfg.TelemetryTopic, 1, log)
	svc := ingest.NewService(consumer, st, rabbitmq.NewPublisher(client), metrics, log, ingest.Config{
		TopicPrefix:    strings.TrimSuffix(cfg.TelemetryTopic, "#"),
		EventTopicTmpl: cfg.EventTopicTmpl,
		Timeout:        cfg.Timeout,
	})

	// === HTTP (health + metrics) ===
	r := mux.NewRouter()
	r.Handle("/healthz", ingest.NewHealthHandler(client, st, svc)).Methods(http.MethodGet)
	r.Handle("/readyz", ingest.NewReadyHandler(client, st, svc, 2*time.Second)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler())

	hs := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info(ctx, "ingest HTTP listening", logging.String("addr", hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server error", logging.Err(err))
			stop()
		}
	}()

	log.Info(ctx, "consuming telemetry", logging.String("topic", cfg.TelemetryTopic))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "consumer stopped", logging.Err(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
}
