package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes payloads to MQTT topics.
type IPublisher interface {
	PublishTo(topic string, qos byte, payload []byte) error
	Close()
}

type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishTo(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the shared client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// PublishJSON marshals v and publishes it.
func PublishJSON(p IPublisher, topic string, qos byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return p.PublishTo(topic, qos, b)
}

// FormatTopic fills the {bin} placeholder of a topic template.
func FormatTopic(tmpl, binID string) string {
	return strings.ReplaceAll(tmpl, "{bin}", binID)
}

// BinFromTopic returns the topic level that follows prefix, e.g. "bin7" for
// ("bin/data/bin7", "bin/data/").
func BinFromTopic(topic, prefix string) string {
	rest := strings.TrimPrefix(topic, prefix)
	if rest == topic {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
