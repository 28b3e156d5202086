// Package observability tracks gateway readiness for the health endpoint.
package observability

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// HealthChecker reports readiness, folding in the Kafka notifier when one is
// configured.
type HealthChecker struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	ready      bool
	kafkaReady bool
	usesKafka  bool
}

// NewHealthChecker creates a health checker that starts ready.
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		logger: logger,
		ready:  true,
	}
}

// SetReady flips overall readiness, used during shutdown to drain traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// SetKafkaReady records Kafka client readiness and marks Kafka as in use.
func (h *HealthChecker) SetKafkaReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kafkaReady = ready
	h.usesKafka = true
}

// Handler serves the /healthz endpoint.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		kafkaReady := h.kafkaReady
		usesKafka := h.usesKafka
		h.mu.RUnlock()

		if ready && (!usesKafka || kafkaReady) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
		}
	}
}
