package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// AuthMetrics считает события аутентификации
type AuthMetrics struct {
	events *prometheus.CounterVec
}

// NewAuthMetrics регистрирует счетчики в reg. nil reg дает метрики без регистрации.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Number of authentication events by type and result",
	}, []string{"event", "result"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			events = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &AuthMetrics{events: events}, nil
}

func (m *AuthMetrics) observe(event string, err error) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.events.WithLabelValues(event, result).Inc()
}
