package bin_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/pkg/dedup"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

// BinSimulator plays the hardware of one smart dustbin: it publishes fill
// readings and empties itself when the dashboard reports it cleaned.
type BinSimulator struct {
	bin       *entities.Bin
	generator *DataGenerator
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	topic     string
	log       logging.Logger
}

func NewBinSimulator(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher,
	gen *DataGenerator, bin *entities.Bin, topic string, log logging.Logger) *BinSimulator {
	if log == nil {
		log = logging.Noop()
	}
	return &BinSimulator{
		bin:       bin,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		topic:     topic,
		log:       log.With(logging.String("bin", bin.ID)),
	}
}

// Start publishes a reading every interval until ctx is done.
func (s *BinSimulator) Start(ctx context.Context, interval time.Duration) {
	s.consumer.SetHandler(s.handleMessage)
	go func() {
		if err := s.consumer.ConsumeMessage(ctx); err != nil {
			s.log.Error(ctx, "cleaned events subscription failed", logging.Err(err))
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-ticker.C:
			if err := s.publish(); err != nil {
				s.log.Warn(ctx, "publish error", logging.Err(err))
			}
		}
	}
}

func (s *BinSimulator) publish() error {
	reading := s.generator.Next(s.bin)
	s.log.Debug(context.Background(), "bin reading", logging.Int("fill_level", *reading.FillLevel))
	return rabbitmq.PublishJSON(s.publisher, s.topic, 1, reading)
}

func (s *BinSimulator) handleMessage(_ string, msg mqtt.Message) error {
	if !s.deduper.ShouldProcess(dedup.PayloadKey(msg.Payload())) {
		return nil
	}

	var evt messages.BinChangedEvent
	if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
		return fmt.Errorf("invalid BinChangedEvent: %w", err)
	}
	if evt.BinID != s.bin.ID || evt.Reason != messages.ReasonCleaned {
		return nil
	}
	s.generator.Empty()
	s.log.Info(context.Background(), "bin emptied by worker")
	return nil
}
