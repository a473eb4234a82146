// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Submission is one accepted prompt. Token is unique and strictly increasing
// per coordinator; it decides whether the completion may touch UIState.
type Submission struct {
	// ID correlates logs and history rows for this submission.
	ID string `json:"id" yaml:"id"`

	Prompt   string    `json:"prompt" yaml:"prompt"`
	Token    uint64    `json:"token" yaml:"token"`
	IssuedAt time.Time `json:"issued_at" yaml:"issued_at"`
}

// Result is the provider output applied to UIState on success.
type Result struct {
	Text         string `json:"text" yaml:"text"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
	StopReason   string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty" yaml:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty" yaml:"output_tokens,omitempty"`
}

// Status is the per-submission state shown to renderers.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusApplied   Status = "applied"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"

	// StatusStale never appears in UIState; it marks discarded completions in history.
	StatusStale Status = "stale"
)

// Recorded reports whether s is a terminal status that history stores.
func (s Status) Recorded() bool {
	switch s {
	case StatusApplied, StatusErrored, StatusCancelled, StatusStale:
		return true
	}
	return false
}

// UIState is the snapshot rendering collaborators subscribe to.
// Error is empty when there is no error.
type UIState struct {
	Prompt       string    `json:"prompt" yaml:"prompt"`
	Loading      bool      `json:"loading" yaml:"loading"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	CurrentToken uint64    `json:"current_token" yaml:"current_token"`
	Status       Status    `json:"status" yaml:"status"`
	Result       *Result   `json:"result,omitempty" yaml:"result,omitempty"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Outcome records how one submission ended. It is what the history store
// persists and what exports are built from.
type Outcome struct {
	ID           string        `json:"id" yaml:"id"`
	SubmissionID string        `json:"submission_id" yaml:"submission_id"`
	Token        uint64        `json:"token" yaml:"token"`
	Prompt       string        `json:"prompt" yaml:"prompt"`
	Status       Status        `json:"status" yaml:"status"`
	Result       string        `json:"result,omitempty" yaml:"result,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	IssuedAt     time.Time     `json:"issued_at" yaml:"issued_at"`
	CompletedAt  time.Time     `json:"completed_at" yaml:"completed_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}
