package draft

func nextState(current State, event Event) State {
	switch event {
	case EventContextSet:
		return StateLoading
	case EventContextCleared:
		return StateNoContext
	}
	switch current {
	case StateLoading:
		if event == EventLoaded {
			return StateEditing
		}
	case StateEditing:
		if event == EventCommitted {
			return StateCommitted
		}
	case StateCommitted:
		if event == EventEdited {
			return StateEditing
		}
	}
	return current
}
