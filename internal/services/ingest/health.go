package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

// BreakerReporter exposes the store circuit breaker state.
type BreakerReporter interface {
	State() gobreaker.State
}

type healthHandler struct {
	mqtt  mqtt.Client
	store BreakerReporter
	svc   *Service
}

func NewHealthHandler(m mqtt.Client, s BreakerReporter, svc *Service) http.Handler {
	return &healthHandler{mqtt: m, store: s, svc: svc}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		MQTTConnected   bool    `json:"mqtt_connected"`
		StoreBreaker    string  `json:"store_breaker"`
		LastWriteErrorS float64 `json:"last_write_error_age_sec"`
	}
	st := status{
		MQTTConnected:   h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		StoreBreaker:    h.store.State().String(),
		LastWriteErrorS: h.svc.LastErrorAge().Seconds(),
	}
	storeOK := h.store.State() != gobreaker.StateOpen

	switch {
	case st.MQTTConnected && storeOK && h.svc.LastErrorAge() > 30*time.Second:
		st.Status = "ok"
	case st.MQTTConnected || storeOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// readyHandler answers 200 only when every dependency is usable and no
// write failed within minErrorAge.
type readyHandler struct {
	mqtt        mqtt.Client
	store       BreakerReporter
	svc         *Service
	minErrorAge time.Duration
}

func NewReadyHandler(m mqtt.Client, s BreakerReporter, svc *Service, minErrorAge time.Duration) http.Handler {
	return &readyHandler{mqtt: m, store: s, svc: svc, minErrorAge: minErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen() &&
		h.store.State() != gobreaker.StateOpen &&
		h.svc.LastErrorAge() > h.minErrorAge

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
