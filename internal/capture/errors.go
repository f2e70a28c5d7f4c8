package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNoActiveRecording is returned by Stop when no chunks were ever accumulated.
	ErrNoActiveRecording = errors.New("no active recording")
)

// AcquisitionError reports a failed media source acquisition: permission
// denied, no device available, or a stream with no live tracks. Fatal to the
// current start attempt; never retried automatically.
type AcquisitionError struct {
	Kind   SourceKind
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquire %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("acquire %s: %s", e.Kind, e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// EncoderError reports an irrecoverable encoder fault. Routed to the recovery
// supervisor rather than the caller.
type EncoderError struct {
	Err error
}

func (e *EncoderError) Error() string { return fmt.Sprintf("encoder: %v", e.Err) }
func (e *EncoderError) Unwrap() error { return e.Err }

// RecoveryFailedError is the terminal error surfaced after the retry budget
// is exhausted. Chunks accumulated before the failure remain retrievable via
// CurrentArtifact.
type RecoveryFailedError struct {
	Attempts int
	Cause    error
}

func (e *RecoveryFailedError) Error() string {
	return fmt.Sprintf("recording failed after %d recovery attempts: %v", e.Attempts, e.Cause)
}

func (e *RecoveryFailedError) Unwrap() error { return e.Cause }
