package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	payloadStepIndex = "step_index"
	payloadSteps     = "steps"
)

// Payload is the opaque job blob. StepIndex is the only contractual field;
// Steps holds the definition snapshot taken at enrollment, and any other
// keys written by producers survive a round trip untouched.
type Payload struct {
	StepIndex int
	Steps     json.RawMessage
	extra     map[string]json.RawMessage
}

// NewPayload starts a payload at step 0 with an optional steps snapshot.
func NewPayload(steps json.RawMessage) Payload {
	return Payload{StepIndex: 0, Steps: steps}
}

// WithStepIndex returns a copy positioned at idx, keeping snapshot and extras.
func (p Payload) WithStepIndex(idx int) Payload {
	out := p
	out.StepIndex = idx
	if p.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(p.extra))
		for k, v := range p.extra {
			out.extra[k] = v
		}
	}
	return out
}

// Extra returns a producer-defined field.
func (p Payload) Extra(key string) (json.RawMessage, bool) {
	v, ok := p.extra[key]
	return v, ok
}

func (p Payload) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(p.extra)+2)
	for k, v := range p.extra {
		fields[k] = v
	}
	idx, err := json.Marshal(p.StepIndex)
	if err != nil {
		return nil, err
	}
	fields[payloadStepIndex] = idx
	if len(p.Steps) > 0 {
		fields[payloadSteps] = p.Steps
	}
	return json.Marshal(fields)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	*p = Payload{}
	if raw, ok := fields[payloadStepIndex]; ok {
		if err := json.Unmarshal(raw, &p.StepIndex); err != nil {
			return fmt.Errorf("%w: step_index: %v", ErrInvalidPayload, err)
		}
		delete(fields, payloadStepIndex)
	}
	if raw, ok := fields[payloadSteps]; ok {
		p.Steps = raw
		delete(fields, payloadSteps)
	}
	if len(fields) > 0 {
		p.extra = fields
	}
	return nil
}

// Value stores the payload as JSONB.
func (p Payload) Value() (driver.Value, error) {
	return p.MarshalJSON()
}

// Scan reads the payload from a JSON/JSONB column.
func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("%w: unsupported payload type %T", ErrInvalidPayload, src)
	}
}
