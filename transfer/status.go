package transfer

// Status is the lifecycle state of an Upload.
type Status int

const (
	// StatusPending is the state of an upload that was not started yet.
	StatusPending Status = iota
	// StatusWorking means an attempt is running.
	StatusWorking
	// StatusRetrying means an attempt failed and the upload waits before the next one.
	StatusRetrying
	// StatusFinished means the file was uploaded.
	StatusFinished
	// StatusFailed means every attempt failed.
	StatusFailed
	// StatusAborted means the upload was aborted.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWorking:
		return "working"
	case StatusRetrying:
		return "retrying"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status can't change anymore.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusAborted
}

// IsActive reports whether an attempt is running or about to run.
func (s Status) IsActive() bool {
	return s == StatusWorking || s == StatusRetrying
}
