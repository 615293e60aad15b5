package observability

import (
	"log/slog"
	"strconv"

	"novalink/core/events"
	"novalink/core/types"
	"novalink/native/escrow"
	"novalink/observability/metrics"
)

// EventRecorder is an events.Emitter that writes ledger transitions to the
// structured log.
type EventRecorder struct {
	logger *slog.Logger
}

// NewEventRecorder builds a recorder logging through the provided logger.
func NewEventRecorder(logger *slog.Logger) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{logger: logger}
}

type payloadCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	var payload *types.Event
	if carrier, ok := evt.(payloadCarrier); ok {
		payload = carrier.Event()
	}
	if payload == nil {
		r.logger.Info("ledger event", slog.String("type", evt.EventType()))
		return
	}
	attrs := make([]any, 0, 2*len(payload.Attributes)+2)
	attrs = append(attrs, slog.String("type", payload.Type))
	for key, value := range payload.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	r.logger.Info("ledger event", attrs...)
}

// MetricsEmitter is an events.Emitter that feeds ledger transitions into the
// prometheus collectors. Wire it alongside an EventRecorder via
// events.MultiEmitter.
type MetricsEmitter struct{}

// NewMetricsEmitter returns an emitter updating the process-wide collectors.
func NewMetricsEmitter() *MetricsEmitter { return &MetricsEmitter{} }

// Emit implements events.Emitter.
func (*MetricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	collectors := metrics.Escrow()
	var payload *types.Event
	if carrier, ok := evt.(payloadCarrier); ok {
		payload = carrier.Event()
	}
	switch evt.EventType() {
	case escrow.EventTypeSessionBooked:
		collectors.SessionBooked()
		collectors.AddReserved(amountOf(payload))
	case escrow.EventTypeSessionReleased:
		collectors.PaymentReleased()
		collectors.AddReserved(-amountOf(payload))
	case escrow.EventTypeSessionDisputed:
		collectors.DisputeOpened()
	case escrow.EventTypeSessionRefunded:
		collectors.RefundIssued()
		collectors.AddReserved(-amountOf(payload))
	}
}

func amountOf(payload *types.Event) float64 {
	if payload == nil {
		return 0
	}
	raw, ok := payload.Attributes["amount"]
	if !ok {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
