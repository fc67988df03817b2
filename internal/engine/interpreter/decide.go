// Package interpreter decides what a queue job does next.
package interpreter

import (
	"fmt"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

// Decide returns Complete once the cursor reaches the end of the workflow,
// otherwise an Advance that performs the step under the cursor. Only delay
// steps push the next execution into the future.
func Decide(def domain.Definition, state domain.Pending, now time.Time) (domain.Decision, error) {
	idx := state.StepIndex
	if idx < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrStepIndexOutOfRange, idx)
	}
	if idx >= def.Len() {
		return domain.Complete{}, nil
	}

	step := def.Steps[idx]
	next := domain.Advance{
		Step:          step,
		NextIndex:     idx + 1,
		NextExecuteAt: now,
	}

	switch s := step.(type) {
	case domain.DelayStep:
		next.NextExecuteAt = now.Add(s.Duration())
	case domain.SendEmailStep, domain.AddTagStep:
	default:
		return nil, fmt.Errorf("%w: unsupported step %T", domain.ErrInvalidDefinition, step)
	}

	return next, nil
}
