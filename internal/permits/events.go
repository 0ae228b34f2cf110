package permits

// Event labels notification intents emitted by the lifecycle. The core
// only records the intent; delivery is the worker's problem and is best
// effort.
type Event string

const (
	// EventSubmitted fires when a requester files a new permit.
	EventSubmitted Event = "permit_submitted"
	// EventApproved fires when a permit resolves to approved.
	EventApproved Event = "permit_approved"
	// EventRejected fires when a permit resolves to rejected.
	EventRejected Event = "permit_rejected"
)

// ResolutionEvent maps a terminal status to its event label.
func ResolutionEvent(status Status) Event {
	if status == StatusRejected {
		return EventRejected
	}
	return EventApproved
}
