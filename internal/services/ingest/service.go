// Package ingest writes bin hardware telemetry received over MQTT into the
// bin store and announces every change.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
	"github.com/LeonardoBeccarini/binova/pkg/dedup"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

// ErrInvalidTelemetry marks payloads that are dropped without a store write.
var ErrInvalidTelemetry = errors.New("invalid telemetry")

type Config struct {
	TopicPrefix    string // e.g. "bin/data/", used when the payload has no bin_id
	EventTopicTmpl string // {bin} placeholder
	Timeout        time.Duration
}

type Service struct {
	consumer rabbitmq.IConsumer
	store    store.Store
	pub      rabbitmq.IPublisher // nil disables event publishing
	seen     *dedup.Deduper
	metrics  *observability.Collector
	log      logging.Logger
	cfg      Config

	now   func() time.Time
	newID func() string

	mu      sync.RWMutex
	lastErr time.Time
}

func NewService(consumer rabbitmq.IConsumer, s store.Store, pub rabbitmq.IPublisher, metrics *observability.Collector, log logging.Logger, cfg Config) *Service {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Service{
		consumer: consumer,
		store:    s,
		pub:      pub,
		seen:     dedup.New(10*time.Minute, 20000),
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		lastErr:  time.Now().Add(-24 * time.Hour),
	}
}

// LastErrorAge is the time since the last failed store write.
func (s *Service) LastErrorAge() time.Duration {
	s.mu.RLock()
	t := s.lastErr
	s.mu.RUnlock()
	return s.now().Sub(t)
}

func (s *Service) markError() {
	s.mu.Lock()
	s.lastErr = s.now()
	s.mu.Unlock()
}

// Start consumes until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.Handle(ctx, msg)
	})
	return s.consumer.ConsumeMessage(ctx)
}

// Handle processes one telemetry message. QoS 1 redeliveries of the same
// payload are skipped.
func (s *Service) Handle(ctx context.Context, msg mqtt.Message) error {
	key := dedup.PayloadKey(msg.Payload())
	if !s.seen.ShouldProcess(key) {
		s.metrics.TelemetryResult(observability.ResultDuplicate)
		return nil
	}

	binID, fields, t, err := s.parse(msg)
	if err != nil {
		s.metrics.TelemetryResult(observability.ResultInvalid)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.store.Put(ctx, binID, fields); err != nil {
		s.metrics.TelemetryResult(observability.ResultError)
		s.markError()
		// the device resend must not be taken for a redelivery
		s.seen.Forget(key)
		return fmt.Errorf("store telemetry for %s: %w", binID, err)
	}
	s.metrics.TelemetryResult(observability.ResultOK)
	s.log.Debug(ctx, "telemetry stored", logging.String("bin", binID), logging.Any("fill_level", fields[entities.FieldFillLevel]))

	if s.pub == nil {
		return nil
	}
	evt := messages.BinChangedEvent{
		EventID:   s.newID(),
		BinID:     binID,
		Reason:    messages.ReasonTelemetry,
		FillLevel: t.fill,
		Status:    t.status,
		Alert:     t.alert,
		Timestamp: t.at,
	}
	if err := rabbitmq.PublishJSON(s.pub, rabbitmq.FormatTopic(s.cfg.EventTopicTmpl, binID), 1, evt); err != nil {
		// the write already happened, pages catch up on their next refresh
		s.log.Warn(ctx, "bin changed publish failed", logging.String("bin", binID), logging.Err(err))
		return nil
	}
	s.metrics.Pushed("mqtt")
	return nil
}

type reading struct {
	fill   int
	status string
	alert  bool
	at     time.Time
}

func (s *Service) parse(msg mqtt.Message) (string, map[string]any, reading, error) {
	var m messages.BinTelemetry
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		return "", nil, reading{}, fmt.Errorf("%w: %s: %v", ErrInvalidTelemetry, msg.Topic(), err)
	}

	binID := strings.TrimSpace(m.BinID)
	if binID == "" {
		binID = rabbitmq.BinFromTopic(msg.Topic(), s.cfg.TopicPrefix)
	}
	if binID == "" {
		return "", nil, reading{}, fmt.Errorf("%w: %s: no bin id", ErrInvalidTelemetry, msg.Topic())
	}
	if !safeBinID(binID) {
		return "", nil, reading{}, fmt.Errorf("%w: %s: bin id %q has unsupported characters", ErrInvalidTelemetry, msg.Topic(), binID)
	}
	if m.FillLevel == nil {
		return "", nil, reading{}, fmt.Errorf("%w: %s: fill_level missing", ErrInvalidTelemetry, binID)
	}
	if *m.FillLevel < 0 || *m.FillLevel > 100 {
		return "", nil, reading{}, fmt.Errorf("%w: %s: fill_level %d out of range", ErrInvalidTelemetry, binID, *m.FillLevel)
	}

	r := reading{fill: *m.FillLevel, at: m.Timestamp}
	if r.at.IsZero() {
		r.at = s.now()
	}
	r.at = r.at.UTC()

	fields := map[string]any{entities.FieldFillLevel: *m.FillLevel}
	if m.Latitude != nil {
		if *m.Latitude < -90 || *m.Latitude > 90 {
			return "", nil, reading{}, fmt.Errorf("%w: %s: latitude out of range", ErrInvalidTelemetry, binID)
		}
		fields[entities.FieldLatitude] = *m.Latitude
	}
	if m.Longitude != nil {
		if *m.Longitude < -180 || *m.Longitude > 180 {
			return "", nil, reading{}, fmt.Errorf("%w: %s: longitude out of range", ErrInvalidTelemetry, binID)
		}
		fields[entities.FieldLongitude] = *m.Longitude
	}
	if m.Status != nil {
		fields[entities.FieldStatus] = *m.Status
		r.status = *m.Status
	}
	if m.Alert != nil {
		fields[entities.FieldAlert] = *m.Alert
		r.alert = *m.Alert
	}
	return binID, fields, r, nil
}

// safeBinID accepts letters, digits, '-', '_' and ':' only.
func safeBinID(id string) bool {
	if len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == ':':
		default:
			return false
		}
	}
	return true
}
