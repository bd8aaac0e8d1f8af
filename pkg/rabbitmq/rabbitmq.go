package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/binova/internal/logging"
)

// RabbitMQConfig addresses the RabbitMQ MQTT plugin (or any MQTT 3.1.1 broker).
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	MaxRetries     int           // connect attempts, default 5
	MaxElapsedTime time.Duration // overall connect budget, default 10s
}

// Enabled reports whether a broker is configured at all.
func (c *RabbitMQConfig) Enabled() bool { return c != nil && c.Host != "" }

// NewRabbitMQConn connects with exponential backoff. The connection is
// closed when ctx is done.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQConfig, log logging.Logger) (mqtt.Client, error) {
	if log == nil {
		log = logging.Noop()
	}
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn(context.Background(), "mqtt connection lost", logging.Err(err))
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn(ctx, "mqtt connect failed", logging.String("broker", connAddr), logging.Err(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info(ctx, "mqtt connected", logging.String("broker", connAddr))

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client, log)
	}()
	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client, log logging.Logger) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		if log != nil {
			log.Info(context.Background(), "mqtt connection closed")
		}
	}
}
