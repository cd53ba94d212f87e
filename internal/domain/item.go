package domain

// ItemStatus enumerates work item lifecycle states.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusError      ItemStatus = "error"
)

// RunState enumerates batch execution states.
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
)

// RunOutcome reports how a run ended.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunStopped   RunOutcome = "stopped"
)

// ImagePayload holds raw image bytes together with their declared media
// type. Payloads are never mutated after creation; copies of a WorkItem may
// share the underlying byte slice.
type ImagePayload struct {
	Data []byte
	MIME string
}

// WorkItem is one image's processing record within a batch.
//
// Invariant: at most one of Result and ErrorMessage is set, and only when
// Status is StatusCompleted or StatusError respectively. Both are cleared
// whenever Status reverts to StatusPending.
type WorkItem struct {
	ID           string
	Filename     string
	DisplayName  string
	Source       ImagePayload
	PreviewKey   string
	Status       ItemStatus
	Result       *ImagePayload
	ErrorMessage string
}

// Clone returns a copy of the item safe to hand to observers. Payload bytes
// are shared, which is safe because payloads are immutable.
func (w WorkItem) Clone() WorkItem {
	out := w
	if w.Result != nil {
		result := *w.Result
		out.Result = &result
	}
	return out
}
