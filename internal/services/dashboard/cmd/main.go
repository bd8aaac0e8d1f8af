package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/binova/internal/config"
	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/services/dashboard"
	"github.com/LeonardoBeccarini/binova/internal/store"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

func main() {
	cfg := config.Load("binova-dashboard")
	log := logging.New(cfg.Log).With(logging.String("service", "dashboard"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, w := range cfg.Warnings() {
		log.Warn(ctx, w)
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
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn(context.Background(), "store close failed", logging.Err(err))
		}
	}()
	log.Info(ctx, "store ready", logging.String("backend", cfg.Store.Backend), logging.String("path", cfg.Store.Path))

	hub := dashboard.NewHub(metrics, log)
	go hub.Run(ctx)
	notifiers := []dashboard.Notifier{hub}

	// === MQTT (optional) ===
	var client mqtt.Client
	if cfg.MQTT.Enabled() {
		client, err = rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
		if err != nil {
			log.Error(ctx, "mqtt connection failed", logging.Err(err))
			os.Exit(1)
		}
		defer rabbitmq.CloseRabbitMQConn(client, log)

		notifiers = append(notifiers, dashboard.NewBrokerNotifier(rabbitmq.NewPublisher(client), cfg.EventTopicTmpl, metrics))

		relay := rabbitmq.NewConsumer(client, cfg.EventSubscription, 1, log)
		relay.SetHandler(dashboard.RelayHandler(ctx, hub))
		go func() {
			if err := relay.ConsumeMessage(ctx); err != nil {
				log.Error(ctx, "event relay stopped", logging.Err(err))
			}
		}()
	} else {
		log.Info(ctx, "MQTT_HOST not set, live events limited to this process")
	}

	svc := dashboard.NewService(st, metrics, log, notifiers...)
	srv := dashboard.NewServer(svc, hub, dashboard.NewHealth(st, client, hub), metrics, log, dashboard.ServerConfig{
		Timeout:       cfg.Timeout,
		RefreshPeriod: cfg.RefreshPeriod,
	})

	hs := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info(ctx, "dashboard listening", logging.String("addr", hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server error", logging.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
}
