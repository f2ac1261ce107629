package entities

import (
	"errors"

	"savegrid.ai/internal/sim/ledger"
)

// StatusReportable is implemented by every resource holder. Snapshot must not mutate state.
type StatusReportable interface {
	Snapshot() ledger.Snapshot
}

// MessageHandler applies committed allocations and applied events to the holder's own ledger.
type MessageHandler interface {
	Handle(msg Message) error
}

// TimeStepUpdatable advances the holder by one tick. Step touches only the holder's own ledger,
// so holders can be stepped concurrently; cross-entity effects are returned as events.
type TimeStepUpdatable interface {
	Step(tick uint64) []Event
}

type Entity interface {
	ID() string
	StatusReportable
	MessageHandler
	TimeStepUpdatable
}

var (
	ErrNoCapacity        = errors.New("no capacity")
	ErrUnavailable       = errors.New("unit unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoVehicle         = errors.New("no vehicle available")
	ErrUnknownMessage    = errors.New("unknown message")
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
