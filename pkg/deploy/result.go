package deploy

// Result is the outcome of one cycle.
type Result string

const (
	ResultUpToDate            Result = "up-to-date"
	ResultSkippedKnownFailure Result = "skipped-known-failure"
	ResultDeployed            Result = "deployed"
	ResultRolledBack          Result = "deploy-failed-rolled-back"
	ResultRollbackFailed      Result = "deploy-failed-rollback-failed"
	// ResultDeployFailed is for when applying fails and rollback is
	// disabled.
	ResultDeployFailed  Result = "deploy-failed"
	ResultResolveFailed Result = "resolve-failed"

	// These come from Guard rather than the Orchestrator.
	ResultBusy       Result = "busy"
	ResultLockFailed Result = "lock-failed"
)

// Failed reports whether the result should be treated as a failure,
// e.g., for a process exit code.
func (r Result) Failed() bool {
	switch r {
	case ResultRolledBack, ResultRollbackFailed, ResultDeployFailed, ResultResolveFailed, ResultLockFailed:
		return true
	}
	return false
}
