package metrics

import "time"

// Event names recorded by the engine.
const (
	EventFirstAudioLatency = "first_audio_latency"
	EventBargeIn           = "barge_in"
	EventToolCall          = "tool_call"
	EventTurnComplete      = "turn_complete"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
