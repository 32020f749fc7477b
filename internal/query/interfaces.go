package query

import "context"

// Channel is the outbound half of the (out-of-scope) network transport: a
// single client connection or correlation scope that Frames and control
// ResponseMessages are written to. Implementations live in transport/.
type Channel interface {
	// IsWritable reports whether the channel's outbound buffer has room.
	// The Result Streamer polls this to implement backpressure (§4.3).
	IsWritable() bool

	// UseBinary selects the binary vs. text serializer (§4.5).
	UseBinary() bool

	// WriteFrame submits an already-built Frame for asynchronous write.
	// Ownership of Frame.Data transfers to the channel.
	WriteFrame(Frame) error

	// WriteResponse submits a structured control response (used for
	// terminal errors and NO_CONTENT, which carry no serialized payload).
	WriteResponse(ResponseMessage) error
}

// Serializer turns an aggregate batch into wire bytes, binary or text.
// Implementations live in transport/ alongside the Channel that selects
// between them via Channel.UseBinary.
type Serializer interface {
	SerializeBinary(msg ResponseMessage) ([]byte, error)
	SerializeText(msg ResponseMessage) ([]byte, error)
}

// GraphManager is the Transaction Coordinator's collaborator: it commits or
// rolls back either a named subset of graphs (strict mode) or all graphs
// it manages (non-strict mode). Implementations live in graphmgr/.
type GraphManager interface {
	Commit(ctx context.Context, graphNames []string) error
	Rollback(ctx context.Context, graphNames []string) error
	CommitAll(ctx context.Context) error
	RollbackAll(ctx context.Context) error
}

// Engine submits a script for evaluation and returns a future-like channel
// that completes with exactly one EvalResult. Implementations live in
// scripting/.
type Engine interface {
	Eval(ctx context.Context, script, language string, bindings map[string]any) (<-chan EvalResult, error)
}

// EvalResult is the single value (or error) an Engine's future completes
// with. Exactly one of Value/Err is meaningful.
type EvalResult struct {
	Value any
	Err   error
	// Timeout, when true alongside a non-nil Err, distinguishes an
	// evaluation-future timeout from any other engine-level failure
	// (spec §4.2: these map to different status codes).
	Timeout bool
}

// Iterator is the minimal pull interface the Result Streamer consumes.
// AsIterator (iterator.go) adapts arbitrary engine output into one.
type Iterator interface {
	HasNext() bool
	Next() (any, error)
}
