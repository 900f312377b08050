package session

// State is the lifecycle phase of the dictation controller.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateInserting
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateInserting:
		return "inserting"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
