package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/formbot/core/dialogue"
)

func init() {
	register(
		dialogueEventsTotal,
		dialogueFallbackTotal,
		dialogueTransitionsTotal,
		dialogueDuration,
	)
}

var (
	dialogueEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_events_total",
			Help: "Events processed by the dialogue supervisor, by event kind and result.",
		},
		[]string{"kind", "result"},
	)

	dialogueFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_fallback_total",
			Help: "Events answered by a state's catch-all handler.",
		},
		[]string{"state"},
	)

	dialogueTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_transitions_total",
			Help: "Committed state changes.",
		},
		[]string{"from", "to"},
	)

	dialogueDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialogue_event_duration_ms",
			Help:    "Time from dequeue to delivery of all replies, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"kind"},
	)
)

// DialogueObserver feeds supervisor outcomes into the collectors above.
type DialogueObserver struct{}

// ObserveDispatch implements dialogue.Observer.
func (DialogueObserver) ObserveDispatch(o dialogue.Outcome) {
	kind := norm(string(o.Kind))
	dialogueEventsTotal.WithLabelValues(kind, resultLabel(o.Err)).Inc()
	dialogueDuration.WithLabelValues(kind).Observe(float64(o.Duration.Milliseconds()))
	if o.Err != nil {
		return
	}
	if o.Fallback {
		dialogueFallbackTotal.WithLabelValues(norm(o.From.String())).Inc()
	}
	if o.Commit != dialogue.CommitNone && o.From != o.To {
		dialogueTransitionsTotal.WithLabelValues(norm(o.From.String()), norm(o.To.String())).Inc()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dialogue.ErrMailboxFull):
		return "dropped"
	case dialogue.IsRetryable(err):
		return "unavailable"
	}
	return "error"
}
