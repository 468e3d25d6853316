// Package alert delivers threshold alerts to external channels. Sinks are
// best effort: a failed delivery is logged and dropped, never retried
// against the observation history.
package alert

import (
	"context"

	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/types"
)

// Sink delivers one alert payload.
type Sink interface {
	Deliver(ctx context.Context, payload *types.AlertPayload) error
}

// LogSink writes alerts to the structured log. It is the fallback sink
// when no external channel is configured.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogSink{logger: logger.WithField("component", "alert")}
}

// Deliver logs the alert. It never fails.
func (s *LogSink) Deliver(ctx context.Context, payload *types.AlertPayload) error {
	s.logger.WithFields(map[string]interface{}{
		"address":     payload.Address,
		"previousEth": types.FormatEther(payload.PreviousBalanceWei),
		"newEth":      types.FormatEther(payload.NewBalanceWei),
		"deltaEth":    types.FormatEtherSigned(payload.DeltaWei),
	}).Info("Balance alert")
	return nil
}

// MultiSink fans one alert out to several sinks. Every sink is attempted;
// the first error is returned after all deliveries complete.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Deliver sends the payload to every sink.
func (m *MultiSink) Deliver(ctx context.Context, payload *types.AlertPayload) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
