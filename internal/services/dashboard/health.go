package dashboard

import (
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

// BreakerReporter exposes the store circuit breaker state.
type BreakerReporter interface {
	State() gobreaker.State
}

// Health backs /healthz and /readyz. mqtt is nil when the broker is not
// configured.
type Health struct {
	store BreakerReporter
	mqtt  mqtt.Client
	hub   *Hub
}

func NewHealth(store BreakerReporter, client mqtt.Client, hub *Hub) *Health {
	return &Health{store: store, mqtt: client, hub: hub}
}

type healthStatus struct {
	Status        string `json:"status"`
	StoreBreaker  string `json:"store_breaker"`
	MQTTEnabled   bool   `json:"mqtt_enabled"`
	MQTTConnected bool   `json:"mqtt_connected"`
	LiveClients   int    `json:"live_clients"`
}

func (h *Health) check() (healthStatus, bool) {
	st := healthStatus{StoreBreaker: h.store.State().String()}
	storeOK := h.store.State() != gobreaker.StateOpen
	mqttOK := true
	if h.mqtt != nil {
		st.MQTTEnabled = true
		st.MQTTConnected = h.mqtt.IsConnectionOpen()
		mqttOK = st.MQTTConnected
	}
	if h.hub != nil {
		st.LiveClients = h.hub.Clients()
	}

	switch {
	case storeOK && mqttOK:
		st.Status = "ok"
	case storeOK || mqttOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st, storeOK && mqttOK
}

// handleHealth always answers 200 with the component states.
func (h *Health) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st, _ := h.check()
	respondWithJSON(w, http.StatusOK, st)
}

// handleReady answers 503 while the store breaker is open or the broker is
// disconnected.
func (h *Health) handleReady(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		Ready bool `json:"ready"`
	}
	_, ready := h.check()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp{Ready: ready})
}
