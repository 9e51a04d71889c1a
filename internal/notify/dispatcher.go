package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultDispatchTimeout = 5 * time.Second

// Dispatcher fans events out to every registered sink. Delivery failures are
// logged and counted; they never reach the caller.
type Dispatcher struct {
	logger  *slog.Logger
	timeout time.Duration
	sinks   []sink
}

type sink struct {
	name    string
	emitter Emitter
}

var (
	metricsOnce   sync.Once
	dispatchTotal *prometheus.CounterVec
)

// NewDispatcher constructs a Dispatcher with no sinks.
func NewDispatcher(logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	registerMetrics()
	return &Dispatcher{logger: logger, timeout: timeout}
}

// Add registers a sink under name.
func (d *Dispatcher) Add(name string, emitter Emitter) *Dispatcher {
	if emitter != nil {
		d.sinks = append(d.sinks, sink{name: name, emitter: emitter})
	}
	return d
}

// Dispatch delivers events after the state change that produced them has committed.
// Request cancellation does not abort delivery; each event gets its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	if d == nil || len(events) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, event := range events {
		if len(event.Recipients) == 0 {
			continue
		}
		for _, s := range d.sinks {
			d.emit(base, s, event)
		}
	}
}

func (d *Dispatcher) emit(base context.Context, s sink, event Event) {
	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", "sink", s.name, "kind", event.Kind, "panic", r)
			dispatchTotal.WithLabelValues(string(event.Kind), s.name, "error").Inc()
		}
	}()

	if err := s.emitter.Emit(ctx, event.Kind, event.Recipients, event.Payload); err != nil {
		d.logger.Warn("notification delivery failed", "sink", s.name, "kind", event.Kind, "recipients", len(event.Recipients), "error", err)
		dispatchTotal.WithLabelValues(string(event.Kind), s.name, "error").Inc()
		return
	}
	dispatchTotal.WithLabelValues(string(event.Kind), s.name, "ok").Inc()
}

func registerMetrics() {
	metricsOnce.Do(func() {
		dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamup",
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Notification events handed to sinks by outcome",
		}, []string{"kind", "sink", "outcome"})
		if err := prometheus.Register(dispatchTotal); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					dispatchTotal = existing
				}
			}
		}
	})
}
