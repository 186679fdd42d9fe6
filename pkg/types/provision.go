package types

import (
	"fmt"
	"time"
)

// ProvisionState tracks where a provisioning attempt is in its lifecycle
type ProvisionState string

const (
	StateRequested ProvisionState = "requested"
	StateLaunched  ProvisionState = "launched"
	StateTagged    ProvisionState = "tagged"
	StatePolling   ProvisionState = "polling"
	StateReady     ProvisionState = "ready"
	StateFailed    ProvisionState = "failed"
)

// IsTerminal reports whether no further transitions can happen
func (s ProvisionState) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

// ErrorKind classifies why a provisioning attempt failed
type ErrorKind string

const (
	ErrLaunchFailure      ErrorKind = "LaunchFailure"      // Provider rejected the launch, nothing was created
	ErrTaggingFailure     ErrorKind = "TaggingFailure"     // Instance exists but tags could not be applied
	ErrInstanceTerminated ErrorKind = "InstanceTerminated" // Instance reached a terminal state before ready
	ErrConvergenceTimeout ErrorKind = "ConvergenceTimeout" // Poll budget exhausted
	ErrDescribeFailure    ErrorKind = "DescribeFailure"    // Single poll failed, retried within the budget
	ErrCancelled          ErrorKind = "Cancelled"          // Caller abandoned the attempt
)

// ProvisionError is the error carried by a failed ProvisionResult
type ProvisionError struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	Err     error     `json:"-" yaml:"-"`
}

// NewProvisionError wraps err under the given kind, using its text as the message
func NewProvisionError(kind ErrorKind, err error) *ProvisionError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ProvisionError{Kind: kind, Message: msg, Err: err}
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// ProvisionAttempt is the mutable record of one provisioning run
type ProvisionAttempt struct {
	InstanceID   string
	State        ProvisionState
	LastSnapshot *InstanceSnapshot
	Attempts     int
	StartedAt    time.Time
}

// ProvisionResult is the terminal outcome of a provisioning run
type ProvisionResult struct {
	InstanceID     string          `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	FinalState     ProvisionState  `json:"final_state" yaml:"final_state"`
	StateName      string          `json:"state,omitempty" yaml:"state,omitempty"`
	PublicAddress  string          `json:"public_ip,omitempty" yaml:"public_ip,omitempty"`
	PrivateAddress string          `json:"private_ip,omitempty" yaml:"private_ip,omitempty"`
	Error          *ProvisionError `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts       int             `json:"describe_attempts" yaml:"describe_attempts"`
	Duration       time.Duration   `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the instance reached the ready state
func (r *ProvisionResult) Succeeded() bool {
	return r != nil && r.FinalState == StateReady
}

// ErrorKind returns the failure kind, or an empty kind for ready results
func (r *ProvisionResult) ErrorKind() ErrorKind {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Kind
}
