package common

// Status is the lifecycle stage of a download entry.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether a task owns the entry and may still mutate it.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusDownloading
}
