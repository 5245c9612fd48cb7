package session

import "time"

// Metrics receives client-side protocol counters.
type Metrics interface {
	SentenceSent()
	SentenceReceived()
	DecodeError()
	PendingChanged(n int)
	RequestCompleted(latency time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SentenceSent()                  {}
func (nopMetrics) SentenceReceived()              {}
func (nopMetrics) DecodeError()                   {}
func (nopMetrics) PendingChanged(int)             {}
func (nopMetrics) RequestCompleted(time.Duration) {}
