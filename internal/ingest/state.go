package ingest

// State is the lifecycle position of a run.
type State uint8

const (
	NotStarted State = iota
	Reading
	Sorting
	Joining
	Dispatching
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Sorting:
		return "sorting"
	case Joining:
		return "joining"
	case Dispatching:
		return "dispatching"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "not_started"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool { return s == Completed || s == Failed }
