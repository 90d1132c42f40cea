// Package interpreter drives a long-lived interactive interpreter subprocess:
// it writes code cells to stdin, classifies stdout/stderr lines into events
// and restarts the subprocess when a write fails.
package interpreter

// State represents the lifecycle state of an interpreter subprocess.
type State int

const (
	// StateNotStarted is the initial state before the first spawn.
	StateNotStarted State = iota

	// StateRunning indicates a live subprocess.
	StateRunning

	// StateCrashed indicates a write failed or the subprocess died.
	StateCrashed

	// StateRestarting indicates the subprocess is being replaced.
	StateRestarting

	// StateTerminated indicates the subprocess was stopped by Terminate.
	StateTerminated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	case StateRestarting:
		return "restarting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsActive returns true if a subprocess is live or about to be.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateRestarting
}

// Phase is the position of a single Run call in its state machine:
// Idle → Preprocessing → WritingCode → {WriteFailed → Restarting → WritingCode}*
// → Streaming → Completed | Failed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreprocessing
	PhaseWritingCode
	PhaseWriteFailed
	PhaseRestarting
	PhaseStreaming
	PhaseCompleted
	PhaseFailed
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreprocessing:
		return "preprocessing"
	case PhaseWritingCode:
		return "writing_code"
	case PhaseWriteFailed:
		return "write_failed"
	case PhaseRestarting:
		return "restarting"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how a Run call ended.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeInterrupted      Outcome = "interrupted"
	OutcomePreprocessFailed Outcome = "preprocess_failed"
	OutcomeMaxRetries       Outcome = "max_retries"
	OutcomeProcessExited    Outcome = "process_exited"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeTimedOut         Outcome = "timed_out"
	OutcomeAbandoned        Outcome = "abandoned"
)

// Succeeded reports whether the cell ran to its end-of-execution sentinel.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCompleted
}
