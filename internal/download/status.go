package download

// Status is the lifecycle state of a queued job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
var validTransitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading, StatusCancelled},
	StatusDownloading: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:   {},
	StatusFailed:      {},
	StatusCancelled:   {},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// GroupStatus is the derived aggregate state of a download group.
type GroupStatus string

const (
	GroupQueued      GroupStatus = "queued"
	GroupDownloading GroupStatus = "downloading"
	GroupCompleted   GroupStatus = "completed"
	GroupFailed      GroupStatus = "failed"
	GroupCancelled   GroupStatus = "cancelled"
)
