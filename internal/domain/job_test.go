package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFromRow(t *testing.T) {
	tests := []struct {
		name      string
		status    JobStatus
		stepIndex int
		errMsg    string
		want      JobState
		wantErr   bool
	}{
		{name: "pending keeps cursor", status: JobStatusPending, stepIndex: 2, want: Pending{StepIndex: 2}},
		{name: "processing is pending", status: JobStatusProcessing, stepIndex: 1, want: Pending{StepIndex: 1}},
		{name: "completed drops cursor", status: JobStatusCompleted, stepIndex: 5, want: Completed{}},
		{name: "failed keeps reason", status: JobStatusFailed, errMsg: "boom", want: Failed{Reason: "boom"}},
		{name: "failed without reason", status: JobStatusFailed, want: Failed{Reason: "unknown error"}},
		{name: "negative cursor", status: JobStatusPending, stepIndex: -1, wantErr: true},
		{name: "unknown status", status: "weird", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StateFromRow(tt.status, tt.stepIndex, tt.errMsg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidState))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionNextState(t *testing.T) {
	assert.Equal(t, Completed{}, Complete{}.NextState())

	adv := Advance{Step: AddTagStep{TagName: "vip"}, NextIndex: 3, NextExecuteAt: time.Now()}
	assert.Equal(t, Pending{StepIndex: 3}, adv.NextState())
}

func TestPayload_PreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"step_index":1,"source":"webhook","meta":{"a":1},"steps":[{"type":"add_tag","tag_name":"x"}]}`)

	var p Payload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, 1, p.StepIndex)
	assert.JSONEq(t, `[{"type":"add_tag","tag_name":"x"}]`, string(p.Steps))

	next := p.WithStepIndex(2)
	out, err := json.Marshal(next)
	require.NoError(t, err)
	assert.JSONEq(t, `{"step_index":2,"source":"webhook","meta":{"a":1},"steps":[{"type":"add_tag","tag_name":"x"}]}`, string(out))

	// the original is not mutated
	assert.Equal(t, 1, p.StepIndex)
	source, ok := p.Extra("source")
	require.True(t, ok)
	assert.JSONEq(t, `"webhook"`, string(source))
}

func TestPayload_Scan(t *testing.T) {
	var p Payload
	require.NoError(t, p.Scan([]byte(`{"step_index":4}`)))
	assert.Equal(t, 4, p.StepIndex)

	require.NoError(t, p.Scan(nil))
	assert.Equal(t, 0, p.StepIndex)

	err := p.Scan(42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = p.Scan(`{"step_index":"two"}`)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDelayStep_Duration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, DelayStep{Amount: 15, Unit: UnitMinutes}.Duration())
	assert.Equal(t, 2*time.Hour, DelayStep{Amount: 2, Unit: UnitHours}.Duration())
	assert.Equal(t, 72*time.Hour, DelayStep{Amount: 3, Unit: UnitDays}.Duration())
}

func TestDelayStep_DurationCapped(t *testing.T) {
	tests := []struct {
		name string
		step DelayStep
		want time.Duration
	}{
		{name: "days at cap", step: DelayStep{Amount: MaxDelayAmount(UnitDays), Unit: UnitDays}, want: MaxDelay},
		{name: "days past int64 range", step: DelayStep{Amount: 200000, Unit: UnitDays}, want: MaxDelay},
		{name: "max int32 minutes", step: DelayStep{Amount: 2147483647, Unit: UnitMinutes}, want: MaxDelay},
		{name: "max int32 hours", step: DelayStep{Amount: 2147483647, Unit: UnitHours}, want: MaxDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.step.Duration()
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}

func TestAttributes_Scan(t *testing.T) {
	var a Attributes
	require.NoError(t, a.Scan([]byte(`{"company":"Acme","seats":12,"vip":true}`)))
	assert.Equal(t, Attributes{"company": "Acme", "seats": "12", "vip": "true"}, a)
}

func TestIsFatal(t *testing.T) {
	err := NewFatalError(ErrCredentialMissing)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.False(t, IsFatal(errors.New("transient")))
	assert.Nil(t, NewFatalError(nil))
}
