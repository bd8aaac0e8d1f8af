package rabbitmq

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/binova/internal/logging"
)

// Handler processes one message; a returned error is logged and the
// message is not redelivered.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes a handler until the context is cancelled.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer subscribes one topic filter on a shared client.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	qos     byte
	log     logging.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.Noop()
	}
	return &Consumer{client: client, topic: topic, qos: qos, log: log}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.log.Warn(ctx, "no handler set", logging.String("topic", c.topic))
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			c.log.Warn(ctx, "message handling failed",
				logging.String("topic", message.Topic()), logging.Err(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.log.Info(ctx, "subscribed", logging.String("topic", c.topic), logging.Int("qos", int(c.qos)))

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
