package draft

type State string

type Event string

const (
	StateNoContext State = "NO_CONTEXT"
	StateLoading   State = "LOADING"
	StateEditing   State = "EDITING"
	StateCommitted State = "COMMITTED"
)

const (
	EventContextSet     Event = "CONTEXT_SET"
	EventContextCleared Event = "CONTEXT_CLEARED"
	EventLoaded         Event = "LOADED"
	EventEdited         Event = "EDITED"
	EventCommitted      Event = "COMMITTED"
)

// Context scopes a draft to one entity and one sub-context, e.g. a patient
// and a shift.
type Context struct {
	EntityID   string `json:"entityId"`
	SubContext string `json:"subContext"`
}

// Payload holds the named text fields of a form.
type Payload map[string]string

func (p Payload) clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
