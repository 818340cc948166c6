package service

import "github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/live"

// Observer receives counters from the session and ingest paths. The metrics
// package provides the Prometheus implementation.
type Observer interface {
	ReadingStored()
	LiveEvent(outcome live.Outcome)
	WindowLength(n int)
	StaleFetch(op string)
	FetchFailed(op string)
}

type nopObserver struct{}

func (nopObserver) ReadingStored() {}
func (nopObserver) LiveEvent(live.Outcome) {}
func (nopObserver) WindowLength(int) {}
func (nopObserver) StaleFetch(string) {}
func (nopObserver) FetchFailed(string) {}
