package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	binSimulator "github.com/LeonardoBeccarini/binova/internal/bin-simulator"
	"github.com/LeonardoBeccarini/binova/internal/config"
	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

func main() {
	binID := flag.String("bin-id", "bin1", "unique bin identifier")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	lat := flag.Float64("lat", 12.9716, "latitude")
	lon := flag.Float64("lon", 77.5946, "longitude")
	initial := flag.Float64("initial", 20, "initial fill level (percent)")
	rate := flag.Float64("rate", 1.5, "average fill increase per minute (percent)")
	flag.Parse()

	cfg := config.Load("binSimulator-" + *binID)
	log := logging.New(cfg.Log).With(logging.String("service", "bin-simulator"))
	if cfg.MQTT.Host == "" {
		cfg.MQTT.Host = "localhost"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.MQTT, log)
	if err != nil {
		log.Error(ctx, "mqtt connection failed", logging.Err(err))
		os.Exit(1)
	}

	bin := entities.Bin{ID: *binID, Latitude: *lat, Longitude: *lon}
	publisher := rabbitmq.NewPublisher(client)
	consumer := rabbitmq.NewConsumer(client, rabbitmq.FormatTopic(cfg.EventTopicTmpl, bin.ID), 1, log)
	generator := binSimulator.NewDataGenerator(*initial, *rate, time.Now().UnixNano())

	sim := binSimulator.NewBinSimulator(consumer, publisher, generator, &bin, "bin/data/"+bin.ID, log)
	sim.Start(ctx, *interval)
}
