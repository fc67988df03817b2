package metrics

import "time"

// Job outcomes reported by the scheduler loop.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeReleased  = "released"
)

type EngineObserver interface {
	RecordJob(outcome string)
	RecordExplosion(campaigns int)
	ObserveInvocation(duration time.Duration, budgetExhausted bool)
	RecordReclaimed(jobs int)
	RecordEnrollment(trigger string, enrolled int)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) RecordJob(string)                      {}
func (Noop) RecordExplosion(int)                   {}
func (Noop) ObserveInvocation(time.Duration, bool) {}
func (Noop) RecordReclaimed(int)                   {}
func (Noop) RecordEnrollment(string, int)          {}
