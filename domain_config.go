package noria

import (
	"github.com/Khalefa/noria/pkg/checktable"
	"github.com/Khalefa/noria/pkg/recorder"
	"github.com/Khalefa/noria/pkg/status"
)

// DomainConfig is everything a Domain needs at construction time.
// Checktable is the one dependency injected rather than defaulted: a
// production deployment points it at a real external service, while
// tests and single-process demos use checktable.NewInMemory. Recorder
// is likewise optional: when set, every packet the domain dequeues is
// appended to it as a RecordedPacket (spec.md §6), the live source for
// cmd/noriacat's offline review; nil means "don't record."
type DomainConfig struct {
	ID              DomainIndex
	BoundedCapacity int
	Clock           Clock
	Logger          Logger
	Checktable      checktable.Service[DomainIndex]
	Metrics         *status.Metrics
	MetricsLabel    string
	Recorder        *recorder.Writer[RecordedPacket]
}

func (c DomainConfig) withDefaults() DomainConfig {
	if c.Clock == nil {
		c.Clock = &MonotonicClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.BoundedCapacity <= 0 {
		c.BoundedCapacity = 1024
	}
	return c
}
