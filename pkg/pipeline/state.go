package pipeline

// State is the step the orchestrator is executing.
type State int32

const (
	Draining State = iota
	DecodingFrame
	Transforming
	Encoding
	FlushingDecoder
	FlushingEncoder
	Done
)

func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case DecodingFrame:
		return "decoding"
	case Transforming:
		return "transforming"
	case Encoding:
		return "encoding"
	case FlushingDecoder:
		return "flushing-decoder"
	case FlushingEncoder:
		return "flushing-encoder"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
