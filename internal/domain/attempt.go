package domain

import (
	"context"
	"time"
)

// Outcome is the terminal result of one transport call.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeFormatRejected Outcome = "format_rejected"
	OutcomeFailed         Outcome = "failed"
)

// Attempt is one chunk, one transport call, one outcome.
type Attempt struct {
	DispatchID string
	ChunkIndex int // zero-based
	ChunkCount int
	RichText   bool
	Outcome    Outcome
	Detail     string
	Length     int // UTF-16 code units
	At         time.Time
}

// AttemptRecorder persists delivery attempts (journal).
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// DeploymentLedger tracks which failed deployments have already been handled.
type DeploymentLedger interface {
	// ClaimDeployment marks id as handled and reports whether this call was
	// the one that claimed it.
	ClaimDeployment(ctx context.Context, id string) (bool, error)
	// FinishDeployment stores the outcome of the fix run for a claimed id.
	FinishDeployment(ctx context.Context, id string, status FixStatus) error
	CountDeployments(ctx context.Context) (int, error)
}

// FixStatus is the state of an automated fix for one deployment.
type FixStatus string

const (
	FixRunning   FixStatus = "running"
	FixSucceeded FixStatus = "succeeded"
	FixFailed    FixStatus = "failed"
	FixTimedOut  FixStatus = "timed_out"
)

// HandledDeployment is one entry of the deployment ledger.
type HandledDeployment struct {
	ID         string
	Status     FixStatus
	ClaimedAt  time.Time
	FinishedAt time.Time // zero while running
}
