package dashboard

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/pkg/rabbitmq"
)

// BrokerNotifier publishes bin changed events on the broker, one topic per
// bin.
type BrokerNotifier struct {
	pub     rabbitmq.IPublisher
	tmpl    string
	metrics *observability.Collector
}

func NewBrokerNotifier(pub rabbitmq.IPublisher, topicTmpl string, metrics *observability.Collector) *BrokerNotifier {
	return &BrokerNotifier{pub: pub, tmpl: topicTmpl, metrics: metrics}
}

func (n *BrokerNotifier) Notify(_ context.Context, evt messages.BinChangedEvent) error {
	if err := rabbitmq.PublishJSON(n.pub, rabbitmq.FormatTopic(n.tmpl, evt.BinID), 1, evt); err != nil {
		return err
	}
	n.metrics.Pushed("mqtt")
	return nil
}

// RelayHandler forwards events published by other processes (the ingest
// service, other dashboard replicas) to the local notifier.
func RelayHandler(ctx context.Context, to Notifier) rabbitmq.Handler {
	return func(_ string, m mqtt.Message) error {
		var evt messages.BinChangedEvent
		if err := json.Unmarshal(m.Payload(), &evt); err != nil {
			return fmt.Errorf("decode bin changed event on %s: %w", m.Topic(), err)
		}
		if evt.BinID == "" {
			return fmt.Errorf("bin changed event on %s without bin_id", m.Topic())
		}
		return to.Notify(ctx, evt)
	}
}
