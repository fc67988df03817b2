// Package workflow decodes stored workflow JSON into closed domain variants.
package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultDelayAmount = 1
	defaultDelayUnit   = domain.UnitDays
)

//go:embed definition.schema.json
var definitionSchemaJSON string

var (
	definitionSchema = mustCompileSchema(definitionSchemaJSON)
	validate         = validator.New(validator.WithRequiredStructEnabled())
)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("workflow: invalid definition schema: %v", err))
	}
	return schema
}

type rawDefinition struct {
	Trigger *domain.Trigger   `json:"trigger"`
	Steps   []json.RawMessage `json:"steps"`
}

// stepFields is the union of every step's fields; a nested "config" object
// may carry them instead of the top level.
type stepFields struct {
	Type       string          `json:"type"`
	Config     json.RawMessage `json:"config,omitempty"`
	Amount     json.RawMessage `json:"amount,omitempty"`
	Unit       string          `json:"unit,omitempty"`
	TemplateID string          `json:"template_id,omitempty"`
	SenderID   string          `json:"sender_id,omitempty"`
	TagName    string          `json:"tag_name,omitempty"`
}

// Decode validates a stored definition and resolves every step to its variant.
func Decode(raw json.RawMessage) (domain.Definition, error) {
	if len(raw) == 0 {
		return domain.Definition{}, fmt.Errorf("%w: empty definition", domain.ErrInvalidDefinition)
	}

	result, err := definitionSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}
	if !result.Valid() {
		return domain.Definition{}, fmt.Errorf("%w: %s", domain.ErrInvalidDefinition, schemaErrors(result))
	}

	var def rawDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}

	out := domain.Definition{}
	if def.Trigger != nil {
		trigger := *def.Trigger
		if trigger.Scope == "" {
			trigger.Scope = domain.ScopeUnlimited
		}
		if err := validate.Struct(trigger); err != nil {
			return domain.Definition{}, fmt.Errorf("%w: trigger: %v", domain.ErrInvalidDefinition, err)
		}
		out.Trigger = trigger
	}

	steps, err := decodeSteps(def.Steps)
	if err != nil {
		return domain.Definition{}, err
	}
	out.Steps = steps
	return out, nil
}

// DecodeSteps resolves a bare steps array, as stored in a job snapshot.
func DecodeSteps(raw json.RawMessage) ([]domain.Step, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: steps snapshot: %v", domain.ErrInvalidDefinition, err)
	}
	return decodeSteps(items)
}

// Snapshot extracts the raw steps array of a definition for a new job payload.
func Snapshot(raw json.RawMessage) (json.RawMessage, error) {
	var def struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}
	if len(def.Steps) == 0 || string(def.Steps) == "null" {
		return json.RawMessage("[]"), nil
	}
	return def.Steps, nil
}

// Resolve returns the definition a job should run: the live trigger with the
// job's snapshotted steps when present, the live steps otherwise. A job whose
// automation row is gone still runs from its snapshot.
func Resolve(raw json.RawMessage, payload domain.Payload) (domain.Definition, error) {
	if len(raw) == 0 && len(payload.Steps) > 0 {
		steps, err := DecodeSteps(payload.Steps)
		if err != nil {
			return domain.Definition{}, err
		}
		return domain.Definition{Steps: steps}, nil
	}

	def, err := Decode(raw)
	if err != nil {
		return domain.Definition{}, err
	}
	if len(payload.Steps) == 0 {
		return def, nil
	}
	steps, err := DecodeSteps(payload.Steps)
	if err != nil {
		return domain.Definition{}, err
	}
	def.Steps = steps
	return def, nil
}

func decodeSteps(items []json.RawMessage) ([]domain.Step, error) {
	steps := make([]domain.Step, 0, len(items))
	for i, item := range items {
		step, err := decodeStep(item)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", domain.ErrInvalidDefinition, i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func decodeStep(raw json.RawMessage) (domain.Step, error) {
	var f stepFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f.Config) > 0 && string(f.Config) != "null" {
		kind := f.Type
		if err := json.Unmarshal(f.Config, &f); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		f.Type = kind
	}

	var step domain.Step
	switch domain.StepKind(f.Type) {
	case domain.StepDelay:
		unit := coerceUnit(f.Unit)
		step = domain.DelayStep{
			Amount: min(coerceAmount(f.Amount), domain.MaxDelayAmount(unit)),
			Unit:   unit,
		}
	case domain.StepSendEmail:
		step = domain.SendEmailStep{
			TemplateID: strings.TrimSpace(f.TemplateID),
			SenderID:   strings.TrimSpace(f.SenderID),
		}
	case domain.StepAddTag:
		step = domain.AddTagStep{TagName: strings.TrimSpace(f.TagName)}
	default:
		return nil, fmt.Errorf("unknown step type %q", f.Type)
	}

	if err := validate.Struct(step); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Type, err)
	}
	return step, nil
}

// coerceAmount accepts numbers and numeric strings; anything else, or a
// non-positive value, becomes 1. The caller caps it per unit.
func coerceAmount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return defaultDelayAmount
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return defaultDelayAmount
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return defaultDelayAmount
		}
		n = parsed
	}

	if math.IsNaN(n) || math.IsInf(n, 0) || n > math.MaxInt32 {
		return defaultDelayAmount
	}
	amount := int(n)
	if amount <= 0 {
		return defaultDelayAmount
	}
	return amount
}

func coerceUnit(unit string) domain.DelayUnit {
	switch u := domain.DelayUnit(strings.ToLower(strings.TrimSpace(unit))); u {
	case domain.UnitMinutes, domain.UnitHours, domain.UnitDays:
		return u
	default:
		return defaultDelayUnit
	}
}

func schemaErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

// AudienceTag reads the tag a campaign audience is narrowed to, from
// "audience.tag" or else "trigger.required_tag", without validating the rest
// of the definition.
func AudienceTag(raw json.RawMessage) string {
	var def struct {
		Audience struct {
			Tag string `json:"tag"`
		} `json:"audience"`
		Trigger struct {
			RequiredTag string `json:"required_tag"`
		} `json:"trigger"`
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return ""
	}
	if tag := strings.TrimSpace(def.Audience.Tag); tag != "" {
		return tag
	}
	return strings.TrimSpace(def.Trigger.RequiredTag)
}
