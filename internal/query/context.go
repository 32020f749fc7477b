package query

// Context is the per-request execution state, owned for the request's
// lifetime (spec §3): the channel to write frames to, the decoded
// request, server settings, and the graph manager used for transaction
// coordination. It is destroyed (simply, garbage-collected) when the
// response stream terminates.
type Context struct {
	Channel      Channel
	Message      RequestMessage
	Settings     Settings
	GraphManager GraphManager

	// terminalWritten tracks whether a terminal frame/response has already
	// been written for this request, so the Evaluator's completion handler
	// never emits a second one (spec §4.2, §9 "callback chaining").
	terminalWritten bool
}

// NewContext builds a request-scoped Context.
func NewContext(ch Channel, msg RequestMessage, settings Settings, gm GraphManager) *Context {
	return &Context{Channel: ch, Message: msg, Settings: settings, GraphManager: gm}
}

// markTerminal reports whether this call is the one that should actually
// write a terminal frame/response — true the first time, false on any
// later attempt.
func (c *Context) markTerminal() bool {
	if c.terminalWritten {
		return false
	}
	c.terminalWritten = true
	return true
}
