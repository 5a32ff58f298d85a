package pipeline

// State is a step of a single pipeline run.
type State int

const (
	Idle State = iota
	Loaded
	Indexed
	Retrieved
	Reranked
	Answered
	Failed
)

var stateNames = [...]string{"idle", "loaded", "indexed", "retrieved", "reranked", "answered", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool { return s == Answered || s == Failed }

// States lists the success path in order.
func States() []State { return []State{Idle, Loaded, Indexed, Retrieved, Reranked, Answered} }
